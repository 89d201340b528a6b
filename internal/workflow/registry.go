package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fleetdash/fleetdash/internal/shared"
)

// StageKey identifies a fulfillment stage.
type StageKey string

const (
	StageApproveQuote       StageKey = "approveQuote"
	StagePreDeliveryJobCard StageKey = "preDeliveryJobCard"
	StageApplyForFinance    StageKey = "applyForFinance"
	StageWaitingForStock    StageKey = "waitingForStock"
	StageLicenseAndReg      StageKey = "licenseAndReg"
)

// FieldNotes is accepted on every stage and never required.
const FieldNotes = "notes"

// Definition describes one stage: what it needs to be completed and whether it may be skipped.
type Definition struct {
	Key       StageKey `json:"key"`
	Title     string   `json:"title"`
	Required  []string `json:"required"`
	Optional  []string `json:"optional"`
	Skippable bool     `json:"skippable"`
}

var definitions = []Definition{
	{
		Key:      StageApproveQuote,
		Title:    "Approve Quote",
		Required: []string{"approvedBy"},
	},
	{
		Key:      StagePreDeliveryJobCard,
		Title:    "Pre Delivery Job Card",
		Required: []string{"jobCardUrl"},
	},
	{
		Key:      StageApplyForFinance,
		Title:    "Apply For Finance",
		Required: []string{"bankReferenceNumber"},
		Optional: []string{"bankName"},
	},
	{
		Key:       StageWaitingForStock,
		Title:     "Waiting For Stock",
		Optional:  []string{"expectedDate", "oemReference"},
		Skippable: true,
	},
	{
		Key:      StageLicenseAndReg,
		Title:    "License And Reg",
		Required: []string{"licensePlate", "registrationNumber"},
		Optional: []string{"licenseDocumentUrl"},
	},
}

// Definitions returns the stages in conventional completion order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// stageKeys returns the stage keys in conventional completion order.
func stageKeys() []StageKey {
	keys := make([]StageKey, 0, len(definitions))
	for _, def := range definitions {
		keys = append(keys, def.Key)
	}
	return keys
}

// Lookup resolves a stage definition. Unknown keys are a validation failure on "stage".
func Lookup(key StageKey) (Definition, error) {
	for _, def := range definitions {
		if def.Key == key {
			return def, nil
		}
	}
	return Definition{}, shared.NewValidationError(fmt.Sprintf("unknown stage %q", key), "stage")
}

// Allows reports whether field may appear in the stage payload.
func (d Definition) Allows(field string) bool {
	if field == FieldNotes {
		return true
	}
	for _, f := range d.Required {
		if f == field {
			return true
		}
	}
	for _, f := range d.Optional {
		if f == field {
			return true
		}
	}
	return false
}

// Validate checks a completion payload. Every missing required field and every
// unknown field is named in the returned ValidationError.
func (d Definition) Validate(payload map[string]string) error {
	var missing []string
	for _, f := range d.Required {
		if strings.TrimSpace(payload[f]) == "" {
			missing = append(missing, f)
		}
	}
	var unknown []string
	for f := range payload {
		if !d.Allows(f) {
			unknown = append(unknown, f)
		}
	}
	sort.Strings(unknown)

	switch {
	case len(missing) > 0 && len(unknown) > 0:
		return shared.NewValidationError(
			fmt.Sprintf("%s: missing required and unknown fields", d.Key),
			append(missing, unknown...)...,
		)
	case len(missing) > 0:
		return shared.NewValidationError(fmt.Sprintf("%s: missing required fields", d.Key), missing...)
	case len(unknown) > 0:
		return shared.NewValidationError(fmt.Sprintf("%s: unknown fields", d.Key), unknown...)
	}
	return nil
}
