package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"perpdesk/pkg/exchange"
)

// CardState is the direction intent of one trading card. A card tracks user
// intent only; execution outcome belongs to the reconciler.
type CardState string

const (
	StateOff          CardState = "off"
	StateLongPending  CardState = "longPending"
	StateShortPending CardState = "shortPending"
)

// Order type values a card accepts.
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Card is one exchange's trading-input slot. All mutators are pure state
// changes with no I/O; invalid input leaves the prior state untouched.
// Access is mutex-guarded: the UI and a running campaign may touch the same
// card, and campaign rounds work off a Snapshot taken at round start.
type Card struct {
	mu sync.Mutex

	exchange  string
	symbol    string
	quantity  string
	price     string
	orderType string
	state     CardState
	group     int
	visible   bool
}

// CardSnapshot is an immutable copy of a card's fields.
type CardSnapshot struct {
	Exchange  string
	Symbol    string
	Quantity  string
	Price     string
	OrderType string
	State     CardState
	Group     int
	Visible   bool
}

// NewCard builds a card for an exchange slot from its configured defaults.
func NewCard(exchangeName string, defaults exchange.CardDefaults) *Card {
	card := &Card{
		exchange:  exchangeName,
		symbol:    strings.TrimSpace(defaults.Symbol),
		quantity:  strings.TrimSpace(defaults.Quantity),
		price:     strings.TrimSpace(defaults.Price),
		orderType: OrderTypeMarket,
		state:     StateOff,
		visible:   true,
	}
	if t := strings.ToLower(strings.TrimSpace(defaults.OrderType)); t == OrderTypeLimit {
		card.orderType = OrderTypeLimit
	}
	if defaults.Group >= 0 && defaults.Group <= 5 {
		card.group = defaults.Group
	}
	switch strings.ToLower(strings.TrimSpace(defaults.Side)) {
	case "long":
		card.state = StateLongPending
	case "short":
		card.state = StateShortPending
	}
	return card
}

// Exchange returns the exchange slot this card drives.
func (c *Card) Exchange() string { return c.exchange }

// Snapshot returns a copy of the card's current fields.
func (c *Card) Snapshot() CardSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CardSnapshot{
		Exchange:  c.exchange,
		Symbol:    c.symbol,
		Quantity:  c.quantity,
		Price:     c.price,
		OrderType: c.orderType,
		State:     c.state,
		Group:     c.group,
		Visible:   c.visible,
	}
}

// SetSymbol updates the card's symbol, which may carry a venue route prefix.
func (c *Card) SetSymbol(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", exchange.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbol = symbol
	return nil
}

// SetQuantity updates the order quantity. Must parse as a positive decimal.
func (c *Card) SetQuantity(quantity string) error {
	quantity = strings.TrimSpace(quantity)
	d, err := decimal.NewFromString(quantity)
	if err != nil || d.Sign() <= 0 {
		return fmt.Errorf("%w: quantity %q must be a positive decimal", exchange.ErrInvalidInput, quantity)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quantity = quantity
	return nil
}

// SetPrice updates the limit price. Empty clears it (market orders ignore the
// field); otherwise it must parse as a positive decimal.
func (c *Card) SetPrice(price string) error {
	price = strings.TrimSpace(price)
	if price != "" {
		d, err := decimal.NewFromString(price)
		if err != nil || d.Sign() <= 0 {
			return fmt.Errorf("%w: price %q must be a positive decimal", exchange.ErrInvalidInput, price)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.price = price
	return nil
}

// SetOrderType switches between market and limit.
func (c *Card) SetOrderType(orderType string) error {
	t := strings.ToLower(strings.TrimSpace(orderType))
	if t != OrderTypeMarket && t != OrderTypeLimit {
		return fmt.Errorf("%w: order type %q", exchange.ErrInvalidInput, orderType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orderType = t
	return nil
}

// SetDirection moves the card to the matching pending state from any state.
func (c *Card) SetDirection(direction string) error {
	var next CardState
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "long":
		next = StateLongPending
	case "short":
		next = StateShortPending
	default:
		return fmt.Errorf("%w: direction %q", exchange.ErrInvalidInput, direction)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = next
	return nil
}

// SetOff always returns the card to Off, clearing direction. Idempotent.
func (c *Card) SetOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateOff
}

// Reverse flips a pending direction long<->short. Off cards stay off.
func (c *Card) Reverse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateLongPending:
		c.state = StateShortPending
	case StateShortPending:
		c.state = StateLongPending
	}
}

// SetGroup moves the card to another group (0-5).
func (c *Card) SetGroup(group int) error {
	if group < 0 || group > 5 {
		return fmt.Errorf("%w: group %d out of range 0-5", exchange.ErrInvalidInput, group)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = group
	return nil
}

// SetVisible shows or hides the card.
func (c *Card) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
}

// ToggleVisible flips visibility and returns the new state.
func (c *Card) ToggleVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = !c.visible
	return c.visible
}

// State returns the current direction state.
func (c *Card) State() CardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Group returns the card's group id.
func (c *Card) Group() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.group
}

// Active reports whether the card participates in act-on-all operations:
// a direction is selected and the card is visible.
func (s CardSnapshot) Active() bool {
	return s.Visible && s.State != StateOff
}

// IsBuy reports the order side for a pending direction.
func (s CardSnapshot) IsBuy() bool {
	return s.State == StateLongPending
}
