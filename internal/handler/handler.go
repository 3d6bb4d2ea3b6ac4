package handler

import (
	"strconv"

	"accountledger/internal/repository"
	"accountledger/internal/service"
	"accountledger/pkg/page"
	"accountledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService *service.AccountService
	ledgerService  *service.LedgerService
	queryService   *service.QueryService
}

func NewHandler(account *service.AccountService, ledger *service.LedgerService, query *service.QueryService) *Handler {
	return &Handler{
		accountService: account,
		ledgerService:  ledger,
		queryService:   query,
	}
}

// ============================================================
// 用户账户接口，用户编号来自网关透传的 X-User-No
// ============================================================

// GetBalance GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	view, err := h.accountService.GetBalance(c.Request.Context(), userNo(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

type BindAccountRequest struct {
	AccountNo   string `json:"account_no"`
	AccountName string `json:"account_name"`
}

// BindAccount POST /api/v1/account/bind
func (h *Handler) BindAccount(c *gin.Context) {
	var req BindAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.BindAccount(c.Request.Context(), &service.BindRequest{
		UserNo:      userNo(c),
		AccountNo:   req.AccountNo,
		AccountName: req.AccountName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

type WithdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Withdraw POST /api/v1/account/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.Withdraw(c.Request.Context(), userNo(c), req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"account_no":        account.AccountNo,
		"unbalance":         account.Unbalance,
		"available_balance": account.AvailableBalance(),
	})
}

// WithdrawRecords GET /api/v1/account/withdraw-record?page_num=1&num_per_page=20
func (h *Handler) WithdrawRecords(c *gin.Context) {
	var p page.Param
	if err := c.ShouldBindQuery(&p); err != nil {
		response.ParamError(c, "分页参数错误")
		return
	}

	bean, err := h.accountService.WithdrawRecords(c.Request.Context(), userNo(c), p)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, bean)
}

// History GET /api/v1/account/history?trx_type=RECHARGE&page_num=1
func (h *Handler) History(c *gin.Context) {
	var p page.Param
	if err := c.ShouldBindQuery(&p); err != nil {
		response.ParamError(c, "分页参数错误")
		return
	}

	bean, err := h.accountService.History(c.Request.Context(), userNo(c), c.Query("trx_type"), p)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, bean)
}

// ============================================================
// 记账接口，只对内部服务开放
// ============================================================

// Credit POST /api/v1/ledger/credit
func (h *Handler) Credit(c *gin.Context) {
	var req service.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.ledgerService.Credit(c.Request.Context(), &req)
	h.writeAccount(c, account, err)
}

// Debit POST /api/v1/ledger/debit
func (h *Handler) Debit(c *gin.Context) {
	var req service.DebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.ledgerService.Debit(c.Request.Context(), &req)
	h.writeAccount(c, account, err)
}

// Freeze POST /api/v1/ledger/freeze
func (h *Handler) Freeze(c *gin.Context) {
	var req service.FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.ledgerService.Freeze(c.Request.Context(), &req)
	h.writeAccount(c, account, err)
}

// SettleSuccess POST /api/v1/ledger/settle/success
func (h *Handler) SettleSuccess(c *gin.Context) {
	var req service.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.ledgerService.SettleSuccess(c.Request.Context(), &req)
	h.writeAccount(c, account, err)
}

// SettleFailure POST /api/v1/ledger/settle/failure
func (h *Handler) SettleFailure(c *gin.Context) {
	var req service.FreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.ledgerService.SettleFailure(c.Request.Context(), &req)
	h.writeAccount(c, account, err)
}

func (h *Handler) writeAccount(c *gin.Context, account interface{}, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// ============================================================
// 运营后台接口
// ============================================================

// PageAccount GET /api/v1/admin/accounts?page_num=1&status=ACTIVE
// 分页参数之外的查询参数都作为过滤条件，不认识的字段返回 CodeInvalidFilter
func (h *Handler) PageAccount(c *gin.Context) {
	p, filter, ok := pageAndFilter(c)
	if !ok {
		return
	}
	bean, err := h.queryService.PageAccount(c.Request.Context(), p, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, bean)
}

// ListActiveAccounts GET /api/v1/admin/accounts/active
func (h *Handler) ListActiveAccounts(c *gin.Context) {
	accounts, err := h.queryService.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, accounts)
}

// GetAccount GET /api/v1/admin/accounts/:accountNo
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.queryService.GetAccountByAccountNo(c.Request.Context(), c.Param("accountNo"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// LatestHistory GET /api/v1/admin/accounts/:accountNo/latest-history?trx_type=WITHDRAW
func (h *Handler) LatestHistory(c *gin.Context) {
	trxType := c.Query("trx_type")
	if trxType == "" {
		response.ParamError(c, "trx_type 不能为空")
		return
	}
	history, err := h.queryService.GetAccountHistoryByAccountNoAndTrxType(c.Request.Context(), c.Param("accountNo"), trxType)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, history)
}

// AccountHistory GET /api/v1/admin/accounts/:accountNo/history?page_num=1
func (h *Handler) AccountHistory(c *gin.Context) {
	var p page.Param
	if err := c.ShouldBindQuery(&p); err != nil {
		response.ParamError(c, "分页参数错误")
		return
	}
	bean, err := h.queryService.PageAccountHistoryByAccountNo(c.Request.Context(), p, c.Param("accountNo"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, bean)
}

// PageHistory GET /api/v1/admin/history?page_num=1&accountNo=xxx
func (h *Handler) PageHistory(c *gin.Context) {
	p, filter, ok := pageAndFilter(c)
	if !ok {
		return
	}
	bean, err := h.queryService.PageAccountHistory(c.Request.Context(), p, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, bean)
}

// GetHistory GET /api/v1/admin/history/:id
func (h *Handler) GetHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	history, err := h.queryService.GetHistoryByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, history)
}

type CompleteSettlementRequest struct {
	BankTrxNo string `json:"bank_trx_no" binding:"max=64"`
}

// CompleteSettlement POST /api/v1/admin/history/:id/complete
func (h *Handler) CompleteSettlement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	// 银行流水号可以不传，此时不带请求体
	var req CompleteSettlementRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	history, err := h.queryService.CompleteSettlement(c.Request.Context(), id, req.BankTrxNo)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, history)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

func pageAndFilter(c *gin.Context) (page.Param, repository.Filter, bool) {
	var p page.Param
	if err := c.ShouldBindQuery(&p); err != nil {
		response.ParamError(c, "分页参数错误")
		return p, nil, false
	}

	filter := repository.Filter{}
	for key, values := range c.Request.URL.Query() {
		if key == "page_num" || key == "num_per_page" || len(values) == 0 {
			continue
		}
		filter[key] = values[0]
	}
	return p, filter, true
}
