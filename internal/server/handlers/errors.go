package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// respondError writes err as an ErrorBody with the status of its AppError.
// Errors without a code are reported as internal.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := errors.GetHTTPStatus(err)
	code := errors.Code(err)
	message := err.Error()
	if code == "" {
		code = errors.ErrCodeInternalError
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "request failed"
	}
	c.AbortWithStatusJSON(status, v1.ErrorBody{Code: code, Message: message})
}

func bindJSON(c *gin.Context, log *logger.Logger, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, log, errors.ValidationError("body", err.Error()))
		return false
	}
	return true
}

func paramID(c *gin.Context, log *logger.Logger, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, log, errors.BadRequest("invalid "+name))
		return 0, false
	}
	return id, true
}
