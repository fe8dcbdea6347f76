package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"team-caltalk/internal/service"
)

// HandleServiceError 把服务层业务错误翻译成 HTTP 状态码。
// 校验类错误带字段级说明返回 4xx，内部错误一律 5xx 且不泄露细节。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrRegistrationFailed):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidInviteCode),
		errors.Is(err, service.ErrTeamNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrScheduleNotFound),
		errors.Is(err, service.ErrUserNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotTeamMember),
		errors.Is(err, service.ErrNotOwner):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrScheduleConflict):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidMessage),
		errors.Is(err, service.ErrInvalidTeamName),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidRange):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		// Log the internal error for debugging
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
