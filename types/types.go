package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// QuoteTicker is the cash instrument every trade settles against.
const QuoteTicker = "RUB"

// MinQty is the smallest order quantity accepted.
const MinQty int64 = 1

var tickerRE = regexp.MustCompile(`^[A-Z]{2,10}$`)

// ValidTicker reports whether s is an acceptable instrument ticker.
func ValidTicker(s string) bool {
	return tickerRE.MatchString(s)
}

// Side represents order direction.
type Side int

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNSPECIFIED"
	}
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide converts a wire name into a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return SideUnspecified, fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OrderType represents order type.
type OrderType int

const (
	OrderTypeUnspecified OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeMarket:
		return "MARKET"
	default:
		return "UNSPECIFIED"
	}
}

// ParseOrderType converts a wire name into an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "LIMIT":
		return OrderTypeLimit, nil
	case "MARKET":
		return OrderTypeMarket, nil
	default:
		return OrderTypeUnspecified, fmt.Errorf("unknown order type %q", s)
	}
}

func (t OrderType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *OrderType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseOrderType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// OrderStatus represents order lifecycle state.
type OrderStatus int

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusNew
	OrderStatusPartiallyExecuted
	OrderStatusExecuted
	OrderStatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyExecuted:
		return "PARTIALLY_EXECUTED"
	case OrderStatusExecuted:
		return "EXECUTED"
	case OrderStatusCancelled:
		return "CANCELLED"
	default:
		return "UNSPECIFIED"
	}
}

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusCancelled
}

// ParseOrderStatus converts a wire name into an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "NEW":
		return OrderStatusNew, nil
	case "PARTIALLY_EXECUTED":
		return OrderStatusPartiallyExecuted, nil
	case "EXECUTED":
		return OrderStatusExecuted, nil
	case "CANCELLED":
		return OrderStatusCancelled, nil
	default:
		return OrderStatusUnspecified, fmt.Errorf("unknown order status %q", s)
	}
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseOrderStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Role represents a user's access level.
type Role int

const (
	RoleUnspecified Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNSPECIFIED"
	}
}

// ParseRole converts a wire name into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "USER":
		return RoleUser, nil
	case "ADMIN":
		return RoleAdmin, nil
	default:
		return RoleUnspecified, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User is a registered account.
type User struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	APIKey    string
	CreatedAt time.Time
}

// Wallet holds a user's balances. One per user.
type Wallet struct {
	ID     int64
	UserID uuid.UUID
}

// Instrument is a tradable asset. Prices are quoted in QuoteTicker.
type Instrument struct {
	ID        int64
	Ticker    string
	Name      string
	CreatedAt time.Time
}

// Balance tracks a wallet's holding of one instrument. Reserved is the
// portion encumbered by live orders; it never exceeds Amount.
type Balance struct {
	WalletID     int64
	InstrumentID int64
	Amount       int64
	Reserved     int64
}

// Available returns the spendable portion of the balance.
func (b Balance) Available() int64 {
	return b.Amount - b.Reserved
}

// Order is a trading order. Price is 0 for market orders.
type Order struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	InstrumentID int64
	Ticker       string
	Type         OrderType
	Status       OrderStatus
	Side         Side
	Qty          int64
	Price        int64
	Filled       int64
	CreatedAt    time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Active reports whether the order can still match or be cancelled.
func (o *Order) Active() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyExecuted
}

// Fill advances the filled quantity and derives the status.
func (o *Order) Fill(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("fill quantity %d must be positive", qty)
	}
	if qty > o.Remaining() {
		return fmt.Errorf("fill quantity %d exceeds remaining %d", qty, o.Remaining())
	}
	o.Filled += qty
	if o.Filled == o.Qty {
		o.Status = OrderStatusExecuted
	} else if o.Filled > 0 {
		o.Status = OrderStatusPartiallyExecuted
	}
	return nil
}

// Cancel marks the order cancelled.
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
}

// Trade is an executed fill. WalletID identifies the selling wallet; Price is
// the maker's resting price at execution.
type Trade struct {
	ID           int64
	InstrumentID int64
	Ticker       string
	WalletID     int64
	Qty          int64
	Price        int64
	CreatedAt    time.Time
}
