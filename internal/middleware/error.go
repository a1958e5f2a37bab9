package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/httputil"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/validator"
)

// ErrorHandler renders the last error attached to the context with the
// standard envelope. Binding failures become validation errors.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Debug().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("request error")
		}

		if c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if c.Errors.Last().Type == gin.ErrorTypeBind {
			err = errors.Validation(validator.Describe(err))
		}
		httputil.RespondWithError(c, err)
	}
}
