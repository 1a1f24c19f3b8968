package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/auth"
	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/domain/store"
	"github.com/xenking/orderdesk/internal/domain/validation"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sentinelStatus maps domain sentinels to response codes. The sentinel's own
// text is the response message so wrapping context stays in the logs.
var sentinelStatus = []struct {
	err    error
	status int
}{
	{store.ErrNotFound, http.StatusNotFound},
	{order.ErrNotFound, http.StatusNotFound},
	{coupon.ErrNotFound, http.StatusNotFound},
	{catalog.ErrCategoryNotFound, http.StatusNotFound},

	{order.ErrEmptyItems, http.StatusBadRequest},
	{catalog.ErrEmptyQuery, http.StatusBadRequest},
	{coupon.ErrCouponExpired, http.StatusBadRequest},
	{coupon.ErrUsageLimitReached, http.StatusBadRequest},

	{order.ErrOrderNumberConflict, http.StatusConflict},
	{order.ErrConcurrentUpdate, http.StatusConflict},
	{coupon.ErrCodeTaken, http.StatusConflict},

	{auth.ErrUnauthorized, http.StatusUnauthorized},
	{auth.ErrForbidden, http.StatusForbidden},
}

// mapError returns the status code and client message for err.
func mapError(err error) (int, string) {
	var (
		vErr    *validation.Error
		qtyErr  *order.InvalidQuantityError
		trErr   *order.InvalidTransitionError
		itemErr *catalog.ItemError
		minErr  *coupon.MinOrderError
		bodyErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.As(err, &qtyErr):
		return http.StatusBadRequest, qtyErr.Error()
	case errors.As(err, &trErr):
		return http.StatusBadRequest, trErr.Error()
	case errors.As(err, &minErr):
		return http.StatusBadRequest, minErr.Error()
	case errors.As(err, &itemErr):
		if errors.Is(itemErr, catalog.ErrItemNotFound) {
			return http.StatusNotFound, itemErr.Error()
		}
		return http.StatusBadRequest, itemErr.Error()
	case errors.As(err, &bodyErr):
		return http.StatusRequestEntityTooLarge, "request body too large"
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			return s.status, s.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}
