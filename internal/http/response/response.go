package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/styletag-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError renders err as {"error":{"code","message"}}. Errors that are
// not *apierr.Error become 500 "internal", except context cancellation.
func RespondError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = apierr.New(http.StatusGatewayTimeout, "timeout", err)
	} else if errors.Is(err, context.Canceled) {
		err = apierr.New(499, "canceled", err)
	}
	ae := apierr.From(err)
	msg := "unknown error"
	if ae.Status >= 500 && ae.Code == "internal" {
		msg = "internal error"
	} else if err != nil {
		msg = ae.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{Error: APIError{Message: msg, Code: ae.Code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
