// Package pricing computes discounted unit prices and quote totals.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fleetdash/fleetdash/internal/shared"
)

// PriceScale is the number of decimal places kept on unit prices.
const PriceScale int32 = 2

var hundred = decimal.NewFromInt(100)

// Product is the catalog snapshot taken when a line is added to a quote.
// Later catalog edits never reach quotes that already carry the snapshot.
type Product struct {
	ID          string          `json:"id"`
	MMCode      string          `json:"mmCode,omitempty"`
	Make        string          `json:"make,omitempty"`
	Model       string          `json:"model,omitempty"`
	Variant     string          `json:"variant,omitempty"`
	RetailPrice decimal.Decimal `json:"retailPrice"`
	MaxDiscount decimal.Decimal `json:"maxDiscount"`
}

// Accessory is a priced accessory line nested under a vehicle part.
type Accessory struct {
	Product        Product         `json:"product"`
	Quantity       int             `json:"quantity"`
	MasterPrice    decimal.Decimal `json:"masterPrice"`
	MasterDiscount decimal.Decimal `json:"masterDiscount"`
	Price          decimal.Decimal `json:"price"`
}

// Part is one vehicle line on a quote.
type Part struct {
	Product        Product         `json:"product"`
	Quantity       int             `json:"quantity"`
	MasterPrice    decimal.Decimal `json:"masterPrice"`
	MasterDiscount decimal.Decimal `json:"masterDiscount"`
	Price          decimal.Decimal `json:"price"`
	Accessories    []Accessory     `json:"accessories"`
}

// LinePrice returns masterPrice * (1 - discount/100) rounded to PriceScale.
// Discounts outside [0, maxDiscount] are rejected rather than clamped.
func LinePrice(masterPrice, discount, maxDiscount decimal.Decimal) (decimal.Decimal, error) {
	if masterPrice.IsNegative() {
		return decimal.Zero, shared.NewValidationError("master price must not be negative", "masterPrice")
	}
	if discount.IsNegative() {
		return decimal.Zero, shared.NewValidationError("discount must not be negative", "masterDiscount")
	}
	if discount.GreaterThan(maxDiscount) {
		return decimal.Zero, shared.NewValidationError(
			fmt.Sprintf("discount %s exceeds maximum %s", discount.String(), maxDiscount.String()),
			"masterDiscount",
		)
	}
	factor := hundred.Sub(discount)
	return masterPrice.Mul(factor).Div(hundred).Round(PriceScale), nil
}

func checkQuantity(qty int) error {
	if qty < 1 {
		return shared.NewValidationError("quantity must be at least 1", "quantity")
	}
	return nil
}

// NewPart builds a priced vehicle line.
func NewPart(product Product, qty int, masterPrice, discount decimal.Decimal) (Part, error) {
	if err := checkQuantity(qty); err != nil {
		return Part{}, err
	}
	price, err := LinePrice(masterPrice, discount, product.MaxDiscount)
	if err != nil {
		return Part{}, err
	}
	return Part{
		Product:        product,
		Quantity:       qty,
		MasterPrice:    masterPrice,
		MasterDiscount: discount,
		Price:          price,
		Accessories:    []Accessory{},
	}, nil
}

// NewAccessory builds a priced accessory line.
func NewAccessory(product Product, qty int, masterPrice, discount decimal.Decimal) (Accessory, error) {
	if err := checkQuantity(qty); err != nil {
		return Accessory{}, err
	}
	price, err := LinePrice(masterPrice, discount, product.MaxDiscount)
	if err != nil {
		return Accessory{}, err
	}
	return Accessory{
		Product:        product,
		Quantity:       qty,
		MasterPrice:    masterPrice,
		MasterDiscount: discount,
		Price:          price,
	}, nil
}

// ApplyDiscount re-prices the part. The part is left untouched on error.
func (p *Part) ApplyDiscount(discount decimal.Decimal) error {
	price, err := LinePrice(p.MasterPrice, discount, p.Product.MaxDiscount)
	if err != nil {
		return err
	}
	p.MasterDiscount = discount
	p.Price = price
	return nil
}

// AddAccessory appends an accessory line.
func (p *Part) AddAccessory(acc Accessory) error {
	if err := acc.Validate(); err != nil {
		return err
	}
	p.Accessories = append(p.Accessories, acc)
	return nil
}

// Validate re-checks bounds and the price invariant.
func (p Part) Validate() error {
	if err := checkQuantity(p.Quantity); err != nil {
		return err
	}
	want, err := LinePrice(p.MasterPrice, p.MasterDiscount, p.Product.MaxDiscount)
	if err != nil {
		return err
	}
	if !want.Equal(p.Price) {
		return shared.NewValidationError("price does not match master price and discount", "price")
	}
	for i, acc := range p.Accessories {
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("accessory %d: %w", i, err)
		}
	}
	return nil
}

// Validate re-checks bounds and the price invariant.
func (a Accessory) Validate() error {
	if err := checkQuantity(a.Quantity); err != nil {
		return err
	}
	want, err := LinePrice(a.MasterPrice, a.MasterDiscount, a.Product.MaxDiscount)
	if err != nil {
		return err
	}
	if !want.Equal(a.Price) {
		return shared.NewValidationError("price does not match master price and discount", "price")
	}
	return nil
}

// LineTotal is price*quantity plus every accessory's price*quantity.
func LineTotal(p Part) decimal.Decimal {
	total := p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
	for _, acc := range p.Accessories {
		total = total.Add(acc.Price.Mul(decimal.NewFromInt(int64(acc.Quantity))))
	}
	return total
}

// QuoteTotal sums LineTotal over all parts.
func QuoteTotal(parts []Part) decimal.Decimal {
	total := decimal.Zero
	for _, p := range parts {
		total = total.Add(LineTotal(p))
	}
	return total
}
