package handler

import (
	"errors"

	"accountledger/internal/service"
	"accountledger/pkg/logger"
	"accountledger/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrAccountNotFound, response.CodeAccountNotFound},
	{service.ErrHistoryNotFound, response.CodeHistoryNotFound},
	{service.ErrInsufficientAvailableBalance, response.CodeBalanceNotEnough},
	{service.ErrFreezeAmountExceedsAvailable, response.CodeFreezeExceedsAvailable},
	{service.ErrUnfreezeAmountExceedsHeld, response.CodeUnfreezeExceedsHeld},
	{service.ErrInvalidAmount, response.CodeInvalidAmount},
	{service.ErrInvalidFilter, response.CodeInvalidFilter},
	{service.ErrInvalidRequest, response.CodeParamError},
	{service.ErrLockTimeout, response.CodeLockTimeout},
	{service.ErrStorageFailure, response.CodeStorageFailure},
}

// codeOf 把服务层错误映射为业务错误码，未知错误按服务器错误处理
func codeOf(err error) int {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return response.CodeServerError
}

func writeError(c *gin.Context, err error) {
	code := codeOf(err)
	switch code {
	case response.CodeStorageFailure, response.CodeServerError:
		// 存储错误细节只进日志
		logger.Error(c.Request.Context(), "请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, code, "系统繁忙，请稍后重试")
	case response.CodeLockTimeout:
		response.Error(c, code, service.ErrLockTimeout.Error())
	default:
		response.Error(c, code, err.Error())
	}
}
