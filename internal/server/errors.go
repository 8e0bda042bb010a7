package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"github.com/smallbiznis/artline/internal/identity/session"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	ledgerdomain "github.com/smallbiznis/artline/internal/ledger/domain"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
)

// errorResponse is the API error body: a stable code plus a human detail.
type errorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ValidationError carries a field-level message surfaced as 400
// validation_error.
type ValidationError struct {
	Field   string
	Message string
}

func (v *ValidationError) Error() string { return v.Message }

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ErrorHandlingMiddleware converts errors attached to the gin context into
// JSON error responses after the handler chain runs.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		detail := vErr.Message
		if vErr.Field != "" {
			detail = vErr.Field + ": " + detail
		}
		return http.StatusBadRequest, errorResponse{Code: "validation_error", Detail: detail}
	}

	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
		return http.StatusBadRequest, errorResponse{Code: "insufficient_credits", Detail: "insufficient credits"}

	case isValidationError(err):
		return http.StatusBadRequest, errorResponse{Code: "validation_error", Detail: err.Error()}

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identitydomain.ErrInvalidCredentials),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrTokenExpired):
		return http.StatusUnauthorized, errorResponse{Code: "unauthorized", Detail: "unauthorized"}

	case errors.Is(err, ErrForbidden),
		errors.Is(err, jobdomain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Code: "forbidden", Detail: "forbidden"}

	case isNotFoundError(err):
		return http.StatusNotFound, errorResponse{Code: "not_found", Detail: "not found"}

	case errors.Is(err, identitydomain.ErrUserExists),
		errors.Is(err, catalogdomain.ErrSlugExists):
		return http.StatusConflict, errorResponse{Code: "conflict", Detail: err.Error()}

	case errors.Is(err, catalogdomain.ErrSchemaUnavailable),
		errors.Is(err, providerdomain.ErrSchemaFetch),
		errors.Is(err, providerdomain.ErrProviderNotActive),
		errors.Is(err, jobdomain.ErrEnqueueFailed):
		return http.StatusServiceUnavailable, errorResponse{Code: "service_unavailable", Detail: "service unavailable"}

	default:
		return http.StatusInternalServerError, errorResponse{Code: "internal_error", Detail: "internal server error"}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, jobdomain.ErrInvalidInput),
		errors.Is(err, catalogdomain.ErrInvalidModel),
		errors.Is(err, identitydomain.ErrInvalidEmail),
		errors.Is(err, identitydomain.ErrInvalidPassword),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, providerdomain.ErrInvalidConfig):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, jobdomain.ErrJobNotFound),
		errors.Is(err, jobdomain.ErrModelNotFound),
		errors.Is(err, catalogdomain.ErrModelNotFound),
		errors.Is(err, identitydomain.ErrNotFound),
		errors.Is(err, providerdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
