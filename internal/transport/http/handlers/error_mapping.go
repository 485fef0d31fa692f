package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/credential-gate/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// serviceErrorCases covers the usecase error set. More specific sentinels
// come before the ones they wrap.
var serviceErrorCases = []ErrorCase{
	{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrAdminDenied, Status: http.StatusUnauthorized, Message: "admin access denied"},
	{Err: usecase.ErrAccountExists, Status: http.StatusConflict, Message: "account already exists"},
	{Err: usecase.ErrStatusUnchanged, Status: http.StatusConflict, Message: "current and new status are identical"},
	{Err: usecase.ErrReservedAccount, Status: http.StatusConflict, Message: "the administrative account cannot be modified"},
	{Err: usecase.ErrConflict, Status: http.StatusConflict, Message: "conflict"},
	{Err: usecase.ErrStorage, Status: http.StatusServiceUnavailable, Message: "storage unavailable, try again later"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// respondServiceError renders usecase errors. Validation errors carry their
// reasons and denials carry the gating status.
func respondServiceError(c *gin.Context, err error) {
	var validation *usecase.ValidationError
	if errors.As(err, &validation) {
		resp := NewErrorResponse(c, "validation failed")
		resp.Reasons = validation.Reasons
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	var denied *usecase.DeniedError
	if errors.As(err, &denied) {
		resp := NewErrorResponse(c, "account "+string(denied.Status)+", login is not allowed")
		resp.Status = string(denied.Status)
		c.JSON(http.StatusForbidden, resp)
		return
	}

	RespondWithMappedError(c, err, serviceErrorCases, http.StatusInternalServerError, "internal error")
}
