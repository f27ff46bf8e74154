// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/ghuser/farmstand/pkg/httpx"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/services/inventory/domain"
)

// InsufficientStockResponse is the 422 body for a refused reservation.
type InsufficientStockResponse struct {
	Error     string `json:"error"     example:"insufficient stock for 7f1c: 1 available, 2 requested"`
	ProductID string `json:"product_id" example:"7f1c"`
	Available int    `json:"available" example:"1"`
	Requested int    `json:"requested" example:"2"`
} // @name InsufficientStockResponse

// Retry-After hints for errors a client can repeat unchanged.
const (
	conflictRetryAfter    = time.Second
	unavailableRetryAfter = 5 * time.Second
)

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors. For 409, 503
// and 500 the client only sees the sentinel or status text; the full chain
// goes to the request log.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		httpx.JSON(w, http.StatusUnprocessableEntity, InsufficientStockResponse{
			Error:     stockErr.Error(),
			ProductID: stockErr.ProductID,
			Available: stockErr.Available,
			Requested: stockErr.Requested,
		})
		return
	}
	switch status := mapErrorToStatus(err); status {
	case http.StatusConflict:
		logger.RecordError(r.Context(), err)
		httpx.JSONErrorRetry(w, status, conflictMessage(err), conflictRetryAfter)
	case http.StatusServiceUnavailable:
		logger.RecordError(r.Context(), err)
		httpx.JSONErrorRetry(w, status, domain.ErrStoreUnavailable.Error(), unavailableRetryAfter)
	case http.StatusInternalServerError:
		logger.RecordError(r.Context(), err)
		httpx.JSONError(w, status, http.StatusText(status))
	default:
		httpx.JSONError(w, status, err.Error())
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, domain.ErrItemAlreadyExists) {
		return domain.ErrItemAlreadyExists.Error()
	}
	return domain.ErrConflict.Error()
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrCartItemNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, domain.ErrItemAlreadyExists),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict // 409
	case errors.Is(err, domain.ErrInvalidItemName),
		errors.Is(err, domain.ErrInvalidItem),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
