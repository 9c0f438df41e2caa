// Package types defines the HTTP request and response shapes and their
// validation rules.
package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	core "github.com/openalpha/spotex/types"
)

var validate = validator.New()

// Validate checks a DTO's validate tags, wrapping failures as a domain
// validation error so the transport maps them to 422.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), core.ErrValidation)
	}
	return nil
}

// RegisterRequest is the body of POST /public/register.
type RegisterRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

// UserResponse mirrors a registered user, api key included.
type UserResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	APIKey string    `json:"api_key"`
}

// InstrumentRequest is the body of POST /admin/instrument.
type InstrumentRequest struct {
	Name   string `json:"name" validate:"required"`
	Ticker string `json:"ticker" validate:"required"`
}

// InstrumentResponse is one catalogue entry.
type InstrumentResponse struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// BalanceChangeRequest is the body of the admin deposit and withdraw routes.
type BalanceChangeRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Ticker string    `json:"ticker" validate:"required"`
	Amount int64     `json:"amount" validate:"required,gt=0"`
}

// OrderRequest is the body of POST /order. The presence of price decides the
// variant: limit when set, market when absent. A present but non-positive
// price is a validation error, never a silent market order.
type OrderRequest struct {
	Direction string `json:"direction" validate:"required,oneof=BUY SELL"`
	Ticker    string `json:"ticker" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gte=1"`
	Price     *int64 `json:"price,omitempty"`
}

// PlaceOrderResponse is the body returned by POST /order.
type PlaceOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

// OrderResponse mirrors one order. Price and Filled are omitted for market
// orders, which never rest and carry no limit price.
type OrderResponse struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp string    `json:"timestamp"`
	Body      OrderBody `json:"body"`
	Filled    *int64    `json:"filled,omitempty"`
}

// OrderBody echoes the placement request inside an order response.
type OrderBody struct {
	Direction string `json:"direction"`
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

// NewOrderResponse converts a core order into its wire shape.
func NewOrderResponse(o *core.Order) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		Status:    o.Status.String(),
		UserID:    o.UserID,
		Timestamp: o.CreatedAt.Format("2006-01-02T15:04:05.999999Z07:00"),
		Body: OrderBody{
			Direction: o.Side.String(),
			Ticker:    o.Ticker,
			Qty:       o.Qty,
		},
	}
	if o.Type == core.OrderTypeLimit {
		price := o.Price
		filled := o.Filled
		resp.Body.Price = &price
		resp.Filled = &filled
	}
	return resp
}

// TradeResponse is one tape entry.
type TradeResponse struct {
	Ticker    string `json:"ticker"`
	Amount    int64  `json:"amount"`
	Price     int64  `json:"price"`
	Timestamp string `json:"timestamp"`
}

// NewTradeResponse converts a core trade into its wire shape.
func NewTradeResponse(tr core.Trade) TradeResponse {
	return TradeResponse{
		Ticker:    tr.Ticker,
		Amount:    tr.Qty,
		Price:     tr.Price,
		Timestamp: tr.CreatedAt.Format("2006-01-02T15:04:05.999999Z07:00"),
	}
}

// OKResponse is the generic success body.
type OKResponse struct {
	Success bool `json:"success"`
}
