// Package notify delivers order and menu events to realtime subscribers.
//
// Events are addressed to a channel: "store-{slug}" for store dashboards and
// "order-{id}" for a single order's tracking page. Delivery is best effort;
// a failed or dropped event never affects the operation that produced it.
package notify

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Event names.
const (
	OrderCreated        = "order.created"
	OrderUpdated        = "order.updated"
	OrderStatusChanged  = "order.status.changed"
	PaymentUpdated      = "payment.updated"
	OrderPaymentUpdated = "order.payment.updated"
	MenuItemCreated     = "menu.item.created"
)

const (
	storePrefix = "store-"
	orderPrefix = "order-"
)

// StoreChannel returns the channel name for a store's dashboard feed.
func StoreChannel(slug string) string { return storePrefix + slug }

// OrderChannel returns the channel name for a single order's feed.
func OrderChannel(orderID string) string { return orderPrefix + orderID }

// ValidChannel reports whether name is a well-formed store or order channel.
func ValidChannel(name string) bool {
	for _, p := range []string{storePrefix, orderPrefix} {
		if rest, ok := strings.CutPrefix(name, p); ok {
			return rest != "" && !strings.ContainsAny(rest, " \t\r\n")
		}
	}
	return false
}

// Payload is the event-specific body of an Event.
type Payload interface {
	Encode(e *jx.Encoder)
}

// Event is a single notification addressed to a channel.
type Event struct {
	Channel string
	Name    string
	Data    Payload
	At      time.Time
}

// Encode writes the event envelope as a JSON object.
func (ev Event) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("event")
	e.Str(ev.Name)
	e.FieldStart("channel")
	e.Str(ev.Channel)
	e.FieldStart("timestamp")
	e.Str(ev.At.UTC().Format(time.RFC3339Nano))
	e.FieldStart("data")
	if ev.Data != nil {
		ev.Data.Encode(e)
	} else {
		e.Null()
	}
	e.ObjEnd()
}

// Marshal returns the JSON wire form of the event.
func Marshal(ev Event) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	ev.Encode(e)
	return append([]byte(nil), e.Bytes()...)
}

// OrderCreatedData announces a newly placed order.
type OrderCreatedData struct {
	OrderID      string
	OrderNumber  string
	Status       string
	Total        decimal.Decimal
	CustomerName string
	CreatedAt    time.Time
}

func (d OrderCreatedData) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(d.OrderID)
	e.FieldStart("orderNumber")
	e.Str(d.OrderNumber)
	e.FieldStart("status")
	e.Str(d.Status)
	e.FieldStart("total")
	encodeMoney(e, d.Total)
	e.FieldStart("customerName")
	e.Str(d.CustomerName)
	e.FieldStart("createdAt")
	e.Str(d.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

// PaymentData reports a payment status change.
type PaymentData struct {
	OrderID       string
	OrderNumber   string
	PaymentStatus string
	Status        string
	CustomerName  string
}

func (d PaymentData) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(d.OrderID)
	e.FieldStart("orderNumber")
	e.Str(d.OrderNumber)
	e.FieldStart("paymentStatus")
	e.Str(d.PaymentStatus)
	e.FieldStart("status")
	e.Str(d.Status)
	e.FieldStart("customerName")
	e.Str(d.CustomerName)
	e.ObjEnd()
}

// StatusData reports an order status change.
type StatusData struct {
	OrderID       string
	OrderNumber   string
	Status        string
	EstimatedTime int
	DeliveredAt   *time.Time
	CustomerName  string
}

func (d StatusData) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(d.OrderID)
	e.FieldStart("orderNumber")
	e.Str(d.OrderNumber)
	e.FieldStart("status")
	e.Str(d.Status)
	e.FieldStart("estimatedTime")
	e.Int(d.EstimatedTime)
	if d.DeliveredAt != nil {
		e.FieldStart("deliveredAt")
		e.Str(d.DeliveredAt.UTC().Format(time.RFC3339))
	}
	e.FieldStart("customerName")
	e.Str(d.CustomerName)
	e.ObjEnd()
}

// MenuItemData announces a menu item added by an admin.
type MenuItemData struct {
	ItemID       string
	Name         string
	Price        decimal.Decimal
	CategoryName string
	IsAvailable  bool
}

func (d MenuItemData) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(d.ItemID)
	e.FieldStart("name")
	e.Str(d.Name)
	e.FieldStart("price")
	encodeMoney(e, d.Price)
	e.FieldStart("categoryName")
	e.Str(d.CategoryName)
	e.FieldStart("isAvailable")
	e.Bool(d.IsAvailable)
	e.ObjEnd()
}

// encodeMoney writes an amount as a JSON number with two decimal places.
func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}
