package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/report"
	"github.com/xenking/orderdesk/internal/domain/validation"
)

type dashboardResponse struct {
	Store   storeJSON `json:"store"`
	Period  string    `json:"period"`
	Metrics struct {
		TotalOrders     int   `json:"totalOrders"`
		TotalRevenue    money `json:"totalRevenue"`
		PendingOrders   int   `json:"pendingOrders"`
		CompletedOrders int   `json:"completedOrders"`
		TotalCustomers  int   `json:"totalCustomers"`
		TotalMenuItems  int   `json:"totalMenuItems"`
	} `json:"metrics"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	period, err := report.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.reports.Dashboard(r.Context(), st.ID, period)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := dashboardResponse{
		Store:       toStoreJSON(st),
		Period:      string(period),
		LastUpdated: h.now().UTC(),
	}
	resp.Metrics.TotalOrders = m.TotalOrders
	resp.Metrics.TotalRevenue = money(m.TotalRevenue)
	resp.Metrics.PendingOrders = m.PendingOrders
	resp.Metrics.CompletedOrders = m.CompletedOrders
	resp.Metrics.TotalCustomers = m.TotalCustomers
	resp.Metrics.TotalMenuItems = m.TotalMenuItems
	writeJSON(w, http.StatusOK, resp)
}

type adminOrderJSON struct {
	ID            string     `json:"id"`
	OrderNumber   string     `json:"orderNumber"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"paymentMethod"`
	PaymentStatus string     `json:"paymentStatus"`
	Subtotal      money      `json:"subtotal"`
	Tax           money      `json:"tax"`
	Discount      money      `json:"discount"`
	Total         money      `json:"total"`
	Notes         string     `json:"notes,omitempty"`
	EstimatedTime int        `json:"estimatedTime"`
	DeliveredAt   *time.Time `json:"deliveredAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	CustomerName  string     `json:"customerName"`
	CustomerPhone string     `json:"customerPhone"`
	CustomerEmail string     `json:"customerEmail,omitempty"`
	OrderItems    string     `json:"orderItems"`
}

type adminOrdersResponse struct {
	Orders []adminOrderJSON `json:"orders"`
	Total  int              `json:"total"`
}

func (h *Handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.reports.Orders(r.Context(), st.ID, r.URL.Query().Get("status"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := adminOrdersResponse{Orders: make([]adminOrderJSON, len(rows)), Total: len(rows)}
	for i, o := range rows {
		resp.Orders[i] = adminOrderJSON{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			Status:        string(o.Status),
			PaymentMethod: string(o.PaymentMethod),
			PaymentStatus: string(o.PaymentStatus),
			Subtotal:      money(o.Subtotal),
			Tax:           money(o.Tax),
			Discount:      money(o.Discount),
			Total:         money(o.Total),
			Notes:         o.Notes,
			EstimatedTime: o.EstimatedTime,
			DeliveredAt:   o.DeliveredAt,
			CreatedAt:     o.CreatedAt,
			CustomerName:  o.CustomerName,
			CustomerPhone: o.CustomerPhone,
			CustomerEmail: o.CustomerEmail,
			OrderItems:    o.ItemSummary,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type adminCustomerJSON struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address,omitempty"`
	Status         string    `json:"status"`
	TotalSpent     money     `json:"totalSpent"`
	TotalOrders    int       `json:"totalOrders"`
	LastOrderItems string    `json:"lastOrderItems"`
	CreatedAt      time.Time `json:"createdAt"`
}

type adminCustomersResponse struct {
	Customers []adminCustomerJSON `json:"customers"`
	Total     int                 `json:"total"`
}

func (h *Handler) adminCustomers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.reports.Customers(r.Context(), st.ID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := adminCustomersResponse{Customers: make([]adminCustomerJSON, len(rows)), Total: len(rows)}
	for i, c := range rows {
		status := "Active"
		if c.IsBlocked {
			status = "Blocked"
		}
		resp.Customers[i] = adminCustomerJSON{
			ID:             c.ID,
			Name:           c.Name,
			Email:          c.Email,
			Phone:          c.Phone,
			Address:        c.Address,
			Status:         status,
			TotalSpent:     money(c.TotalSpent),
			TotalOrders:    c.TotalOrders,
			LastOrderItems: c.LastOrderItems,
			CreatedAt:      c.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsJSON struct {
	Total      int `json:"total"`
	Available  int `json:"available"`
	OutOfStock int `json:"outOfStock"`
}

func toStatsJSON(s catalog.Stats) statsJSON {
	return statsJSON{Total: s.Total, Available: s.Available, OutOfStock: s.OutOfStock}
}

type menuItemsResponse struct {
	MenuItems  []menuItemJSON `json:"menuItems"`
	Total      int            `json:"total"`
	Statistics statsJSON      `json:"statistics"`
}

type menuItemResponse struct {
	MenuItem   menuItemJSON `json:"menuItem"`
	Statistics statsJSON    `json:"statistics"`
}

func (h *Handler) menuItems(w http.ResponseWriter, r *http.Request) {
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, stats, err := h.catalog.Items(r.Context(), st.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, menuItemsResponse{
		MenuItems:  toMenuItemsJSON(items),
		Total:      len(items),
		Statistics: toStatsJSON(stats),
	})
}

type createMenuItemRequest struct {
	CategoryID  string          `json:"categoryId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Size        string          `json:"size"`
	ImageURL    string          `json:"imageUrl"`
	IsVeg       bool            `json:"isVeg"`
	IsAvailable *bool           `json:"isAvailable"`
	SortOrder   int             `json:"sortOrder"`
}

func (h *Handler) createMenuItem(w http.ResponseWriter, r *http.Request) {
	var body createMenuItemRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	in := catalog.NewItem{
		CategoryID:  body.CategoryID,
		Name:        body.Name,
		Description: body.Description,
		Price:       body.Price,
		Size:        body.Size,
		ImageURL:    body.ImageURL,
		IsVeg:       body.IsVeg,
		IsAvailable: true,
		SortOrder:   body.SortOrder,
	}
	if body.IsAvailable != nil {
		in.IsAvailable = *body.IsAvailable
	}
	item, stats, err := h.catalog.CreateItem(r.Context(), st, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, menuItemResponse{MenuItem: toMenuItemJSON(*item), Statistics: toStatsJSON(stats)})
}

func (h *Handler) setAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsAvailable *bool `json:"isAvailable"`
	}
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if body.IsAvailable == nil {
		h.writeError(w, r, validation.New("isAvailable", "required"))
		return
	}
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, stats, err := h.catalog.SetAvailability(r.Context(), st.ID, r.PathValue("id"), *body.IsAvailable)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, menuItemResponse{MenuItem: toMenuItemJSON(*item), Statistics: toStatsJSON(stats)})
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cats, err := h.catalog.Categories(r.Context(), st.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]categoryJSON, len(cats))
	for i, c := range cats {
		out[i] = toCategoryJSON(c)
	}
	writeJSON(w, http.StatusOK, struct {
		Categories []categoryJSON `json:"categories"`
		Total      int            `json:"total"`
	}{out, len(out)})
}

type couponJSON struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Type           string     `json:"type"`
	Value          money      `json:"value"`
	MinOrderAmount *money     `json:"minOrderAmount"`
	MaxDiscount    *money     `json:"maxDiscount"`
	UsageLimit     *int       `json:"usageLimit"`
	UsedCount      int        `json:"usedCount"`
	IsActive       bool       `json:"isActive"`
	ValidFrom      *time.Time `json:"validFrom"`
	ValidUntil     *time.Time `json:"validUntil"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toCouponJSON(c coupon.Coupon) couponJSON {
	return couponJSON{
		ID:             c.ID,
		Code:           c.Code,
		Name:           c.Name,
		Description:    c.Description,
		Type:           string(c.Type),
		Value:          money(c.Value),
		MinOrderAmount: nullMoney(c.MinOrderAmount),
		MaxDiscount:    nullMoney(c.MaxDiscount),
		UsageLimit:     c.UsageLimit,
		UsedCount:      c.UsedCount,
		IsActive:       c.IsActive,
		ValidFrom:      c.ValidFrom,
		ValidUntil:     c.ValidUntil,
		CreatedAt:      c.CreatedAt,
	}
}

type couponsResponse struct {
	Coupons    []couponJSON `json:"coupons"`
	Total      int          `json:"total"`
	Statistics struct {
		TotalCoupons   int   `json:"totalCoupons"`
		ActiveCoupons  int   `json:"activeCoupons"`
		TotalUsage     int   `json:"totalUsage"`
		TotalSavings   money `json:"totalSavings"`
		ConversionRate int64 `json:"conversionRate"`
	} `json:"statistics"`
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, stats, err := h.coupons.List(r.Context(), st.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := couponsResponse{Coupons: make([]couponJSON, len(list)), Total: len(list)}
	for i, c := range list {
		resp.Coupons[i] = toCouponJSON(c)
	}
	resp.Statistics.TotalCoupons = stats.Total
	resp.Statistics.ActiveCoupons = stats.Active
	resp.Statistics.TotalUsage = stats.TotalUsage
	resp.Statistics.TotalSavings = money(stats.TotalSavings)
	resp.Statistics.ConversionRate = stats.ConversionRate
	writeJSON(w, http.StatusOK, resp)
}

// couponRequest is shared by create and update. Absent fields keep their
// current value on update.
type couponRequest struct {
	Code           *string          `json:"code"`
	Name           *string          `json:"name"`
	Description    *string          `json:"description"`
	Type           *string          `json:"type"`
	Value          *decimal.Decimal `json:"value"`
	MinOrderAmount *decimal.Decimal `json:"minOrderAmount"`
	MaxDiscount    *decimal.Decimal `json:"maxDiscount"`
	UsageLimit     *int             `json:"usageLimit"`
	IsActive       *bool            `json:"isActive"`
	ValidFrom      *time.Time       `json:"validFrom"`
	ValidUntil     *time.Time       `json:"validUntil"`
}

func (b couponRequest) input() coupon.Input {
	in := coupon.Input{
		Code:        deref(b.Code),
		Name:        deref(b.Name),
		Description: deref(b.Description),
		Type:        coupon.Type(deref(b.Type)),
		UsageLimit:  b.UsageLimit,
		IsActive:    true,
		ValidFrom:   b.ValidFrom,
		ValidUntil:  b.ValidUntil,
	}
	if b.Value != nil {
		in.Value = *b.Value
	}
	if b.MinOrderAmount != nil {
		in.MinOrderAmount = decimal.NewNullDecimal(*b.MinOrderAmount)
	}
	if b.MaxDiscount != nil {
		in.MaxDiscount = decimal.NewNullDecimal(*b.MaxDiscount)
	}
	if b.IsActive != nil {
		in.IsActive = *b.IsActive
	}
	return in
}

func (b couponRequest) patch() coupon.Patch {
	p := coupon.Patch{
		Code:           b.Code,
		Name:           b.Name,
		Description:    b.Description,
		Value:          b.Value,
		MinOrderAmount: b.MinOrderAmount,
		MaxDiscount:    b.MaxDiscount,
		UsageLimit:     b.UsageLimit,
		IsActive:       b.IsActive,
		ValidFrom:      b.ValidFrom,
		ValidUntil:     b.ValidUntil,
	}
	if b.Type != nil {
		t := coupon.Type(*b.Type)
		p.Type = &t
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var body couponRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.coupons.Create(r.Context(), st.ID, body.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponJSON(*c))
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var body couponRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), st.ID, r.PathValue("id"), body.patch())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponJSON(*c))
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.coupons.Delete(r.Context(), st.ID, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
