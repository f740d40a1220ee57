package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes a failure envelope with the given HTTP status and business
// error code.
func Error(c *gin.Context, status int, code int, message string) {
	proxyutil.FailJson(c, status, codeErr{code: uint32(code), msg: message})
}
