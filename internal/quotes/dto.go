package quotes

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fleetdash/fleetdash/internal/pricing"
)

// CreateRequest starts a draft quote.
type CreateRequest struct {
	CustomerDetails CustomerDetails `json:"customerDetails"`
}

// AddPartRequest selects a vehicle onto the quote. MasterPrice defaults to
// the product's retail price.
type AddPartRequest struct {
	Product        pricing.Product  `json:"product"`
	Quantity       int              `json:"quantity" validate:"required,gte=1"`
	MasterPrice    *decimal.Decimal `json:"masterPrice,omitempty"`
	MasterDiscount decimal.Decimal  `json:"masterDiscount"`
}

// AddAccessoryRequest attaches an accessory line to a part.
type AddAccessoryRequest struct {
	Product        pricing.Product  `json:"product"`
	Quantity       int              `json:"quantity" validate:"required,gte=1"`
	MasterPrice    *decimal.Decimal `json:"masterPrice,omitempty"`
	MasterDiscount decimal.Decimal  `json:"masterDiscount"`
}

// DiscountRequest re-prices a part.
type DiscountRequest struct {
	MasterDiscount decimal.Decimal `json:"masterDiscount"`
}

// StatusRequest carries a direct or forced status value.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// BankRefRequest sets the free-text bank reference.
type BankRefRequest struct {
	BankRef string `json:"bankRef" validate:"max=120"`
}

// TransitionRequest is the stage transition body: {stage, data}.
// data holds the stage fields plus the optional completed/skipped flags and notes.
type TransitionRequest struct {
	Stage string                     `json:"stage" validate:"required"`
	Data  map[string]json.RawMessage `json:"data"`
}

// TransitionResponse is returned by the stage transition endpoint.
type TransitionResponse struct {
	Message string `json:"message"`
	Quote   *Quote `json:"quote"`
}

// DocumentResponse is returned after an attachment upload.
type DocumentResponse struct {
	URL string `json:"url"`
}
