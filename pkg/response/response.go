package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 业务错误码，HTTP 状态码统一为 200，调用方按 code 判断
const (
	CodeAccountNotFound        = 1001
	CodeBalanceNotEnough       = 1002
	CodeFreezeExceedsAvailable = 1003
	CodeUnfreezeExceedsHeld    = 1004
	CodeDuplicateRequest       = 1005
	CodeInvalidAmount          = 1006
	CodeInvalidFilter          = 1007
	CodeHistoryNotFound        = 1008

	// 以下两个错误码调用方可以重试
	CodeLockTimeout    = 2001
	CodeStorageFailure = 2002
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// Abort 中间件拒绝请求时使用，后续 handler 不再执行
func Abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// Retryable 锁超时和存储失败之外的错误码重试不会有不同结果
func Retryable(code int) bool {
	return code == CodeLockTimeout || code == CodeStorageFailure
}
