package handler

import (
	"net/http"
	"time"

	"github.com/xenking/orderdesk/internal/domain/customer"
	"github.com/xenking/orderdesk/internal/domain/order"
)

type placeOrderRequest struct {
	StoreSlug string `json:"storeSlug"`
	Customer  struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Address string `json:"address"`
	} `json:"customer"`
	Items []struct {
		MenuItemID string `json:"menuItemId"`
		Quantity   int    `json:"quantity"`
		Notes      string `json:"notes"`
	} `json:"items"`
	PaymentMethod string `json:"paymentMethod"`
	CouponCode    string `json:"couponCode"`
	Notes         string `json:"notes"`
}

type placeOrderResponse struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	Status        string `json:"status"`
	Total         money  `json:"total"`
	EstimatedTime int    `json:"estimatedTime"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	req := order.PlaceOrderRequest{
		StoreSlug: body.StoreSlug,
		Customer: customer.Profile{
			Phone:   body.Customer.Phone,
			Name:    body.Customer.Name,
			Email:   body.Customer.Email,
			Address: body.Customer.Address,
		},
		Items:         make([]order.LineRequest, len(body.Items)),
		PaymentMethod: order.PaymentMethod(body.PaymentMethod),
		CouponCode:    body.CouponCode,
		Notes:         body.Notes,
	}
	for i, it := range body.Items {
		req.Items[i] = order.LineRequest{MenuItemID: it.MenuItemID, Quantity: it.Quantity, Notes: it.Notes}
	}

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placeOrderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		Total:         money(o.Total),
		EstimatedTime: o.EstimatedTime,
	})
}

type orderCustomerJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type orderStoreJSON struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type orderLineJSON struct {
	ID         string `json:"id"`
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
	Price      money  `json:"price"`
	Notes      string `json:"notes,omitempty"`
	MenuItem   struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		ImageURL    string `json:"imageUrl,omitempty"`
		Size        string `json:"size,omitempty"`
		IsVeg       bool   `json:"isVeg"`
	} `json:"menuItem"`
}

type orderDetailJSON struct {
	ID            string            `json:"id"`
	OrderNumber   string            `json:"orderNumber"`
	Status        string            `json:"status"`
	PaymentMethod string            `json:"paymentMethod"`
	PaymentStatus string            `json:"paymentStatus"`
	Subtotal      money             `json:"subtotal"`
	Tax           money             `json:"tax"`
	Discount      money             `json:"discount"`
	Total         money             `json:"total"`
	Notes         string            `json:"notes,omitempty"`
	EstimatedTime int               `json:"estimatedTime"`
	DeliveredAt   *time.Time        `json:"deliveredAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Customer      orderCustomerJSON `json:"customer"`
	Store         orderStoreJSON    `json:"store"`
	Coupon        *couponJSON       `json:"coupon"`
	Items         []orderLineJSON   `json:"items"`
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	d, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := orderDetailJSON{
		ID:            d.ID,
		OrderNumber:   d.OrderNumber,
		Status:        string(d.Status),
		PaymentMethod: string(d.PaymentMethod),
		PaymentStatus: string(d.PaymentStatus),
		Subtotal:      money(d.Subtotal),
		Tax:           money(d.Tax),
		Discount:      money(d.Discount),
		Total:         money(d.Total),
		Notes:         d.Notes,
		EstimatedTime: d.EstimatedTime,
		DeliveredAt:   d.DeliveredAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		Customer: orderCustomerJSON{
			ID:      d.Customer.ID,
			Name:    d.Customer.Name,
			Phone:   d.Customer.Phone,
			Email:   d.Customer.Email,
			Address: d.Customer.Address,
		},
		Store: orderStoreJSON{
			ID:      d.Store.ID,
			Slug:    d.Store.Slug,
			Name:    d.Store.Name,
			Address: d.Store.Address,
			Phone:   d.Store.Phone,
		},
		Items: make([]orderLineJSON, len(d.Lines)),
	}
	if d.Coupon != nil {
		c := toCouponJSON(*d.Coupon)
		resp.Coupon = &c
	}
	for i, l := range d.Lines {
		line := orderLineJSON{
			ID:         l.ID,
			MenuItemID: l.MenuItemID,
			Quantity:   l.Quantity,
			Price:      money(l.Price),
			Notes:      l.Notes,
		}
		line.MenuItem.ID = l.MenuItem.ID
		line.MenuItem.Name = l.MenuItem.Name
		line.MenuItem.Description = l.MenuItem.Description
		line.MenuItem.ImageURL = l.MenuItem.ImageURL
		line.MenuItem.Size = l.MenuItem.Size
		line.MenuItem.IsVeg = l.MenuItem.IsVeg
		resp.Items[i] = line
	}
	writeJSON(w, http.StatusOK, resp)
}

type paymentRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

type paymentResponse struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var body paymentRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	next, err := order.ParsePaymentStatus(body.PaymentStatus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdatePaymentStatus(r.Context(), r.PathValue("id"), next)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{
		ID:            o.ID,
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
	})
}

type statusRequest struct {
	Status        string `json:"status"`
	EstimatedTime *int   `json:"estimatedTime"`
}

type statusResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	EstimatedTime int        `json:"estimatedTime"`
	DeliveredAt   *time.Time `json:"deliveredAt"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	next, err := order.ParseStatus(body.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), next, body.EstimatedTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		EstimatedTime: o.EstimatedTime,
		DeliveredAt:   o.DeliveredAt,
	})
}
