// Package handler exposes the order, menu and admin HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/orderdesk/internal/domain/auth"
	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/domain/report"
	"github.com/xenking/orderdesk/internal/domain/store"
	"github.com/xenking/orderdesk/internal/domain/validation"
)

const maxBodyBytes = 1 << 20

// Orders places and tracks orders.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Details, error)
	UpdatePaymentStatus(ctx context.Context, id string, next order.PaymentStatus) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, next order.Status, estimatedTime *int) (*order.Order, error)
}

// Catalog reads and edits the menu.
type Catalog interface {
	Menu(ctx context.Context, storeID string) ([]catalog.Section, error)
	Search(ctx context.Context, storeID, query string) ([]catalog.MenuItem, error)
	Items(ctx context.Context, storeID string) ([]catalog.MenuItem, catalog.Stats, error)
	Categories(ctx context.Context, storeID string) ([]catalog.Category, error)
	CreateItem(ctx context.Context, st *store.Store, in catalog.NewItem) (*catalog.MenuItem, catalog.Stats, error)
	SetAvailability(ctx context.Context, storeID, itemID string, available bool) (*catalog.MenuItem, catalog.Stats, error)
}

// Coupons administers coupons.
type Coupons interface {
	List(ctx context.Context, storeID string) ([]coupon.Coupon, coupon.Stats, error)
	Create(ctx context.Context, storeID string, in coupon.Input) (*coupon.Coupon, error)
	Update(ctx context.Context, storeID, id string, p coupon.Patch) (*coupon.Coupon, error)
	Delete(ctx context.Context, storeID, id string) error
}

// Reports serves the admin dashboard views.
type Reports interface {
	Dashboard(ctx context.Context, storeID string, period report.Period) (report.Metrics, error)
	Orders(ctx context.Context, storeID, status string, limit int) ([]report.OrderRow, error)
	Customers(ctx context.Context, storeID string, limit int) ([]report.CustomerRow, error)
}

// Authenticator verifies API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, raw, scope string) (*auth.Key, error)
}

// Deps are the collaborators of Handler.
type Deps struct {
	Orders  Orders
	Catalog Catalog
	Coupons Coupons
	Reports Reports
	Stores  store.Repository
	Auth    Authenticator
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// DefaultStore is used by menu and admin routes without ?store=.
	DefaultStore string
}

// Handler serves the JSON API.
type Handler struct {
	orders  Orders
	catalog Catalog
	coupons Coupons
	reports Reports
	stores  store.Repository
	auth    Authenticator

	defaultStore string
	now          func() time.Time
}

// New constructs a Handler.
func New(deps Deps, cfg Config) *Handler {
	return &Handler{
		orders:       deps.Orders,
		catalog:      deps.Catalog,
		coupons:      deps.Coupons,
		reports:      deps.Reports,
		stores:       deps.Stores,
		auth:         deps.Auth,
		defaultStore: cfg.DefaultStore,
		now:          time.Now,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	h.route(mux, "POST /api/orders", h.placeOrder)
	h.route(mux, "GET /api/orders/{id}", h.getOrder)
	h.route(mux, "PUT /api/orders/{id}/payment", h.requireScope(auth.ScopeOrders, h.updatePayment))
	h.route(mux, "PUT /api/orders/{id}/status", h.requireScope(auth.ScopeOrders, h.updateStatus))

	h.route(mux, "GET /api/menu", h.menu)
	h.route(mux, "GET /api/menu/search", h.searchMenu)

	admin := func(fn http.HandlerFunc) http.HandlerFunc { return h.requireScope(auth.ScopeAdmin, fn) }
	h.route(mux, "GET /api/admin/dashboard", admin(h.dashboard))
	h.route(mux, "GET /api/admin/orders", admin(h.adminOrders))
	h.route(mux, "GET /api/admin/customers", admin(h.adminCustomers))
	h.route(mux, "GET /api/admin/menu-items", admin(h.menuItems))
	h.route(mux, "POST /api/admin/menu-items", admin(h.createMenuItem))
	h.route(mux, "PUT /api/admin/menu-items/{id}/availability", admin(h.setAvailability))
	h.route(mux, "GET /api/admin/categories", admin(h.categories))
	h.route(mux, "GET /api/admin/coupons", admin(h.listCoupons))
	h.route(mux, "POST /api/admin/coupons", admin(h.createCoupon))
	h.route(mux, "PUT /api/admin/coupons/{id}", admin(h.updateCoupon))
	h.route(mux, "DELETE /api/admin/coupons/{id}", admin(h.deleteCoupon))
}

// route registers fn and names the request span after the route pattern.
func (h *Handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		span.SetName(pattern)
		span.SetAttributes(attribute.String("http.route", pattern))
		fn(w, r)
	})
}

// store resolves the ?store= query parameter, falling back to the default.
func (h *Handler) store(r *http.Request) (*store.Store, error) {
	slug := r.URL.Query().Get("store")
	if slug == "" {
		slug = h.defaultStore
	}
	return h.stores.GetBySlug(r.Context(), slug)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return validation.New("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validation.New(name, "must be an integer")
	}
	return n, nil
}

// money renders a decimal as a JSON number with two decimals.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

func nullMoney(d decimal.NullDecimal) *money {
	if !d.Valid {
		return nil
	}
	m := money(d.Decimal)
	return &m
}
