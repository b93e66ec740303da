// Package response writes the {code, msg, data} envelope every endpoint
// answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

type codedError struct {
	code uint32
	msg  string
}

func (e codedError) Error() string {
	return e.msg
}

func (e codedError) Code() uint32 {
	return e.code
}

// NewError pairs an errcode value with a client facing message.
func NewError(code int, msg string) error {
	return codedError{code: uint32(code), msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error reports a failure in the envelope. The HTTP status stays 200 and
// clients branch on code.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, NewError(code, message))
}
