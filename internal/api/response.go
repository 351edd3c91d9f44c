package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorDetail describes one request or domain error.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// DataResponse writes data under status.
func DataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusCreated, data)
}

func BadRequestResponse(c echo.Context, details []ErrorDetail) error {
	return DataResponse(c, http.StatusBadRequest, details)
}

// ErrorResponse maps a domain error onto a status code:
// ValidationError 400, ErrNotFound 404, ErrDuplicateKey 409,
// DataUnavailableError 422, anything else 500.
func ErrorResponse(c echo.Context, err error) error {
	status, detail := classify(err)
	return DataResponse(c, status, []ErrorDetail{detail})
}

func classify(err error) (int, ErrorDetail) {
	var (
		validation  *domain.ValidationError
		unavailable *domain.DataUnavailableError
		config      *domain.ConfigurationError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorDetail{Code: "ERR_VALIDATION", Field: validation.Field, Message: validation.Reason}
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "ERR_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict, ErrorDetail{Code: "ERR_DUPLICATE", Message: err.Error()}
	case errors.As(err, &unavailable):
		return http.StatusUnprocessableEntity, ErrorDetail{
			Code:    "ERR_DATA_UNAVAILABLE",
			Message: unavailable.Error(),
			Params:  map[string]interface{}{"ticker": unavailable.Ticker},
		}
	case errors.As(err, &config):
		return http.StatusInternalServerError, ErrorDetail{Code: "ERR_CONFIGURATION", Field: config.Setting, Message: config.Error()}
	default:
		return http.StatusInternalServerError, ErrorDetail{Code: "ERR_INTERNAL", Message: "Something went wrong"}
	}
}
