package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Cart maps product id to desired quantity. A quantity is never stored <= 0.
type Cart map[int64]int

type CartLine struct {
	ProductID int64
	Quantity  int
}

func NewCart() Cart {
	return make(Cart)
}

// Add puts one more unit of the product in the cart, bounded by the
// last-known stock figure. The cart is left untouched on error.
func (c Cart) Add(productID int64, lastKnownStock int) error {
	next := c[productID] + 1
	if lastKnownStock <= 0 || next > lastKnownStock {
		return &StockError{
			ProductID: productID,
			Requested: next,
			Available: max(lastKnownStock, 0),
			Err:       ErrStockInsufficient,
		}
	}
	c[productID] = next
	return nil
}

// Increment is Add for a line that must already be in the cart.
func (c Cart) Increment(productID int64, lastKnownStock int) error {
	if _, ok := c[productID]; !ok {
		return ErrNotInCart
	}
	return c.Add(productID, lastKnownStock)
}

// Decrement removes one unit; the line disappears when it reaches zero.
func (c Cart) Decrement(productID int64) {
	qty, ok := c[productID]
	if !ok {
		return
	}
	if qty <= 1 {
		delete(c, productID)
		return
	}
	c[productID] = qty - 1
}

func (c Cart) Remove(productID int64) {
	delete(c, productID)
}

func (c Cart) Quantity(productID int64) int {
	return c[productID]
}

func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

func (c Cart) TotalQuantity() int {
	total := 0
	for _, qty := range c {
		total += qty
	}
	return total
}

func (c Cart) ProductIDs() []int64 {
	return slices.Sorted(maps.Keys(c))
}

// Lines returns the cart lines ordered by product id.
func (c Cart) Lines() []CartLine {
	lines := make([]CartLine, 0, len(c))
	for _, id := range c.ProductIDs() {
		lines = append(lines, CartLine{ProductID: id, Quantity: c[id]})
	}
	return lines
}

func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	maps.Copy(out, c)
	return out
}

func (c Cart) Equal(other Cart) bool {
	return maps.Equal(c, other)
}

// MarshalJSON encodes the cart as {"<product id>": quantity}, the form
// carts take at the session boundary.
func (c Cart) MarshalJSON() ([]byte, error) {
	raw := make(map[string]int, len(c))
	for id, qty := range c {
		raw[strconv.FormatInt(id, 10)] = qty
	}
	return json.Marshal(raw)
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Cart, len(raw))
	for key, qty := range raw {
		id, err := ParseCartEntry(key, qty)
		if err != nil {
			return err
		}
		out[id] = qty
	}
	*c = out
	return nil
}

// ParseCartEntry validates one serialized cart entry.
func ParseCartEntry(key string, qty int) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cart entry %q: invalid product id", key)
	}
	if qty <= 0 {
		return 0, fmt.Errorf("cart entry %q: quantity %d must be positive", key, qty)
	}
	return id, nil
}
