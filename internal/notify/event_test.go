package notify

import (
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidChannel(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    bool
	}{
		{name: "store", channel: StoreChannel("siddhi"), want: true},
		{name: "order", channel: OrderChannel("7c1d"), want: true},
		{name: "empty", channel: "", want: false},
		{name: "bare prefix", channel: "store-", want: false},
		{name: "unknown prefix", channel: "admin-1", want: false},
		{name: "whitespace", channel: "order-1 2", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidChannel(tt.channel))
		})
	}
}

func TestMarshal_OrderCreated(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	body := Marshal(Event{
		Channel: StoreChannel("siddhi"),
		Name:    OrderCreated,
		At:      at,
		Data: OrderCreatedData{
			OrderID:      "o-1",
			OrderNumber:  "ORD1",
			Status:       "PENDING",
			Total:        decimal.RequireFromString("330.75"),
			CustomerName: "Asha",
			CreatedAt:    at,
		},
	})

	require.True(t, jx.Valid(body), string(body))
	assert.JSONEq(t, `{
		"event": "order.created",
		"channel": "store-siddhi",
		"timestamp": "2025-03-01T10:30:00Z",
		"data": {
			"orderId": "o-1",
			"orderNumber": "ORD1",
			"status": "PENDING",
			"total": 330.75,
			"customerName": "Asha",
			"createdAt": "2025-03-01T10:30:00Z"
		}
	}`, string(body))
}

func TestMarshal_StatusOmitsDeliveredAt(t *testing.T) {
	body := Marshal(Event{
		Channel: OrderChannel("o-1"),
		Name:    OrderUpdated,
		At:      time.Unix(0, 0),
		Data:    StatusData{OrderID: "o-1", OrderNumber: "ORD1", Status: "PREPARING", EstimatedTime: 25},
	})

	assert.NotContains(t, string(body), "deliveredAt")
	assert.Contains(t, string(body), `"estimatedTime":25`)
}

func TestRoutingKey(t *testing.T) {
	ev := Event{Channel: StoreChannel("siddhi"), Name: OrderStatusChanged}
	assert.Equal(t, "store-siddhi.order.status.changed", RoutingKey(ev))
}
