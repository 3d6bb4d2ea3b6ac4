package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/infrastructure/database"
	"accountledger/internal/infrastructure/lock"
	"accountledger/internal/model"
	"accountledger/internal/service"
	"accountledger/pkg/response"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const noRepeatWindow = 2 * time.Second

type result struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router http.Handler
}

func newTestServer(t *testing.T, rdb *redis.Client) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		Server:     config.ServerConfig{Mode: "test"},
		Kafka:      config.KafkaConfig{Topic: config.KafkaTopicConfig{LedgerEntry: "ledger_entry"}},
		Ledger:     config.LedgerConfig{LockMode: config.LockModeLocal, LockWait: 5 * time.Second},
		Pagination: config.PaginationConfig{DefaultPageSize: 20, MaxPageSize: 100},
		Business:   config.BusinessConfig{NoRepeatWindow: noRepeatWindow},
	}
	return &testServer{
		t:      t,
		db:     db,
		router: SetupRouter(db, rdb, lock.NewLocalLocker(cfg.Ledger.LockWait), cfg),
	}
}

func (s *testServer) do(method, path, userNo string, body interface{}) result {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userNo != "" {
		req.Header.Set(HeaderUserNo, userNo)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var res result
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func (s *testServer) credit(userNo, amount, requestNo string) result {
	return s.do(http.MethodPost, "/api/v1/ledger/credit", "", body{
		"user_no":    userNo,
		"amount":     amount,
		"request_no": requestNo,
		"trx_type":   model.TrxTypeRecharge,
	})
}

type body = map[string]interface{}

func decodeData(t *testing.T, res result, v interface{}) {
	t.Helper()
	require.Equal(t, response.CodeSuccess, res.Code, res.Message)
	require.NoError(t, json.Unmarshal(res.Data, v))
}

func TestAccountFlow_BindCreditWithdraw(t *testing.T) {
	s := newTestServer(t, nil)

	var account model.Account
	decodeData(t, s.do(http.MethodPost, "/api/v1/account/bind", "U1", body{"account_name": "alice"}), &account)
	assert.Equal(t, "U1", account.UserNo)
	assert.NotEmpty(t, account.AccountNo)

	require.Equal(t, response.CodeSuccess, s.credit("U1", "100.00", "R1").Code)

	var withdraw struct {
		Unbalance        decimal.Decimal `json:"unbalance"`
		AvailableBalance decimal.Decimal `json:"available_balance"`
	}
	decodeData(t, s.do(http.MethodPost, "/api/v1/account/withdraw", "U1", body{"amount": "30"}), &withdraw)
	assert.True(t, withdraw.Unbalance.Equal(decimal.NewFromInt(30)))
	assert.True(t, withdraw.AvailableBalance.Equal(decimal.NewFromInt(70)))

	var balance service.BalanceView
	decodeData(t, s.do(http.MethodGet, "/api/v1/account/balance", "U1", nil), &balance)
	assert.Equal(t, account.AccountNo, balance.AccountNo)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, balance.AvailableBalance.Equal(decimal.NewFromInt(70)))

	res := s.do(http.MethodPost, "/api/v1/account/withdraw", "U1", body{"amount": "80"})
	assert.Equal(t, response.CodeFreezeExceedsAvailable, res.Code)

	res = s.do(http.MethodPost, "/api/v1/account/withdraw", "U1", body{"amount": "0"})
	assert.Equal(t, response.CodeInvalidAmount, res.Code)
}

func TestAccountRoutes_RequireUserNo(t *testing.T) {
	s := newTestServer(t, nil)

	res := s.do(http.MethodGet, "/api/v1/account/balance", "", nil)
	assert.Equal(t, response.CodeUnauthorized, res.Code)
}

func TestGetBalance_AccountNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	res := s.do(http.MethodGet, "/api/v1/account/balance", "nobody", nil)
	assert.Equal(t, response.CodeAccountNotFound, res.Code)
}

func TestLedgerRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(http.MethodPost, "/api/v1/account/bind", "U1", body{})

	require.Equal(t, response.CodeSuccess, s.credit("U1", "100", "R1").Code)

	res := s.do(http.MethodPost, "/api/v1/ledger/debit", "", body{
		"user_no": "U1", "amount": "150", "request_no": "R2", "trx_type": model.TrxTypeAdjust,
	})
	assert.Equal(t, response.CodeBalanceNotEnough, res.Code)

	res = s.do(http.MethodPost, "/api/v1/ledger/freeze", "", body{"user_no": "U1", "amount": "40"})
	require.Equal(t, response.CodeSuccess, res.Code)

	res = s.do(http.MethodPost, "/api/v1/ledger/settle/failure", "", body{"user_no": "U1", "amount": "50"})
	assert.Equal(t, response.CodeUnfreezeExceedsHeld, res.Code)

	var account model.Account
	decodeData(t, s.do(http.MethodPost, "/api/v1/ledger/settle/success", "", body{
		"user_no": "U1", "amount": "40", "request_no": "R3", "trx_type": model.TrxTypeWithdraw,
	}), &account)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, account.Unbalance.IsZero())

	res = s.do(http.MethodPost, "/api/v1/ledger/credit", "", body{
		"user_no": "U1", "amount": "1.001", "request_no": "R4", "trx_type": model.TrxTypeRecharge,
	})
	assert.Equal(t, response.CodeInvalidAmount, res.Code)

	res = s.do(http.MethodPost, "/api/v1/ledger/credit", "", body{
		"user_no": "U1", "amount": "1", "trx_type": model.TrxTypeRecharge,
	})
	assert.Equal(t, response.CodeParamError, res.Code)

	var bean struct {
		TotalCount int64                  `json:"total_count"`
		RecordList []model.AccountHistory `json:"record_list"`
	}
	decodeData(t, s.do(http.MethodGet, "/api/v1/account/withdraw-record", "U1", nil), &bean)
	require.Len(t, bean.RecordList, 1)
	assert.Equal(t, "R3", bean.RecordList[0].RequestNo)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	for i := 1; i <= 3; i++ {
		userNo := fmt.Sprintf("U%d", i)
		s.do(http.MethodPost, "/api/v1/account/bind", userNo, body{"account_no": "ACC" + userNo})
		require.Equal(t, response.CodeSuccess, s.credit(userNo, "10", "R"+userNo).Code)
	}

	var accounts []model.Account
	decodeData(t, s.do(http.MethodGet, "/api/v1/admin/accounts/active", "", nil), &accounts)
	assert.Len(t, accounts, 3)

	var one model.Account
	decodeData(t, s.do(http.MethodGet, "/api/v1/admin/accounts/ACCU2", "", nil), &one)
	assert.Equal(t, "U2", one.UserNo)

	res := s.do(http.MethodGet, "/api/v1/admin/accounts?page_num=1&num_per_page=2&status=ACTIVE", "", nil)
	var accountPage struct {
		TotalCount int64 `json:"total_count"`
		PageCount  int   `json:"page_count"`
	}
	decodeData(t, res, &accountPage)
	assert.Equal(t, int64(3), accountPage.TotalCount)
	assert.Equal(t, 2, accountPage.PageCount)

	res = s.do(http.MethodGet, "/api/v1/admin/accounts?password=x", "", nil)
	assert.Equal(t, response.CodeInvalidFilter, res.Code)

	var latest model.AccountHistory
	decodeData(t, s.do(http.MethodGet, "/api/v1/admin/accounts/ACCU1/latest-history?trx_type=RECHARGE", "", nil), &latest)
	assert.Equal(t, "RU1", latest.RequestNo)

	res = s.do(http.MethodGet, "/api/v1/admin/accounts/ACCU1/latest-history?trx_type=WITHDRAW", "", nil)
	assert.Equal(t, response.CodeHistoryNotFound, res.Code)

	var historyPage struct {
		TotalCount int64 `json:"total_count"`
	}
	decodeData(t, s.do(http.MethodGet, "/api/v1/admin/accounts/ACCU3/history", "", nil), &historyPage)
	assert.Equal(t, int64(1), historyPage.TotalCount)

	decodeData(t, s.do(http.MethodGet, "/api/v1/admin/history?trxType=RECHARGE", "", nil), &historyPage)
	assert.Equal(t, int64(3), historyPage.TotalCount)

	path := fmt.Sprintf("/api/v1/admin/history/%d", latest.ID)
	var completed model.AccountHistory
	decodeData(t, s.do(http.MethodPost, path+"/complete", "", body{"bank_trx_no": "BANK1"}), &completed)
	assert.Equal(t, model.Yes, completed.IsCompleteSett)
	require.NotNil(t, completed.BankTrxNo)
	assert.Equal(t, "BANK1", *completed.BankTrxNo)

	// 已经完成的不能再完成
	res = s.do(http.MethodPost, path+"/complete", "", nil)
	assert.Equal(t, response.CodeHistoryNotFound, res.Code)

	var got model.AccountHistory
	decodeData(t, s.do(http.MethodGet, path, "", nil), &got)
	assert.Equal(t, model.Yes, got.IsCompleteSett)

	res = s.do(http.MethodGet, "/api/v1/admin/history/abc", "", nil)
	assert.Equal(t, response.CodeParamError, res.Code)
}

func TestNoRepeatSubmit(t *testing.T) {
	const key = "norepeat:U1:/api/v1/account/withdraw"

	t.Run("窗口内第二次提交被拒绝", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		s := newTestServer(t, rdb)

		mock.ExpectSetNX(key, 1, noRepeatWindow).SetVal(false)
		res := s.do(http.MethodPost, "/api/v1/account/withdraw", "U1", body{"amount": "1"})
		assert.Equal(t, response.CodeDuplicateRequest, res.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Redis 不可用时放行", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		s := newTestServer(t, rdb)

		mock.ExpectSetNX(key, 1, noRepeatWindow).SetErr(errors.New("connection refused"))
		res := s.do(http.MethodPost, "/api/v1/account/withdraw", "U1", body{"amount": "1"})
		// 放行到业务逻辑，账户不存在
		assert.Equal(t, response.CodeAccountNotFound, res.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
