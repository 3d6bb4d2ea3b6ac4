package handler

import (
	"time"

	"accountledger/pkg/logger"
	"accountledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserNo    = "X-User-No"

	ctxUserNo = "user_no"
)

// RequestIDMiddleware 透传或生成请求号，写入 context 供日志使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// LoggerMiddleware 请求日志
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info(c.Request.Context(), "[HTTP]",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "[PANIC]", zap.Any("error", err), zap.String("path", c.Request.URL.Path))
				response.Abort(c, response.CodeServerError, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// UserAuth 用户身份由网关解析后放在 X-User-No 中
func UserAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userNo := c.GetHeader(HeaderUserNo)
		if userNo == "" {
			response.Abort(c, response.CodeUnauthorized, "未登录")
			return
		}
		c.Set(ctxUserNo, userNo)
		c.Next()
	}
}

func userNo(c *gin.Context) string {
	return c.GetString(ctxUserNo)
}

// NoRepeatSubmit 防重复提交：同一用户同一接口在 window 内只放行一次
// Redis 不可用时放行，只记告警
func NoRepeatSubmit(rdb *redis.Client, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "norepeat:" + userNo(c) + ":" + c.FullPath()
		ok, err := rdb.SetNX(c.Request.Context(), key, 1, window).Result()
		if err != nil {
			logger.Warn(c.Request.Context(), "防重复提交检查失败，放行", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			response.Abort(c, response.CodeDuplicateRequest, "请勿重复提交")
			return
		}
		c.Next()
	}
}
