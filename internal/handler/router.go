package handler

import (
	"net/http"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/infrastructure/lock"
	"accountledger/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
// rdb 为 nil 时不启用防重复提交
func SetupRouter(db *gorm.DB, rdb *redis.Client, locker lock.Locker, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", HeaderRequestID, HeaderUserNo},
		ExposeHeaders:   []string{HeaderRequestID},
		MaxAge:          12 * time.Hour,
	}))

	ledger := service.NewLedgerService(db, locker, cfg)
	query := service.NewQueryService(db, cfg)
	h := NewHandler(service.NewAccountService(db, ledger, query), ledger, query)

	noRepeat := func(c *gin.Context) { c.Next() }
	if rdb != nil {
		noRepeat = NoRepeatSubmit(rdb, cfg.Business.NoRepeatWindow)
	}

	api := r.Group("/api/v1")
	{
		// 用户账户
		account := api.Group("/account", UserAuth())
		{
			account.GET("/balance", h.GetBalance)
			account.POST("/bind", noRepeat, h.BindAccount)
			account.POST("/withdraw", noRepeat, h.Withdraw)
			account.GET("/withdraw-record", h.WithdrawRecords)
			account.GET("/history", h.History)
		}

		// 记账，内部服务调用
		ledgerGroup := api.Group("/ledger")
		{
			ledgerGroup.POST("/credit", h.Credit)
			ledgerGroup.POST("/debit", h.Debit)
			ledgerGroup.POST("/freeze", h.Freeze)
			ledgerGroup.POST("/settle/success", h.SettleSuccess)
			ledgerGroup.POST("/settle/failure", h.SettleFailure)
		}

		// 运营后台
		admin := api.Group("/admin")
		{
			admin.GET("/accounts", h.PageAccount)
			admin.GET("/accounts/active", h.ListActiveAccounts)
			admin.GET("/accounts/:accountNo", h.GetAccount)
			admin.GET("/accounts/:accountNo/history", h.AccountHistory)
			admin.GET("/accounts/:accountNo/latest-history", h.LatestHistory)
			admin.GET("/history", h.PageHistory)
			admin.GET("/history/:id", h.GetHistory)
			admin.POST("/history/:id/complete", h.CompleteSettlement)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
