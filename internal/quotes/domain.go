package quotes

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetdash/fleetdash/internal/pricing"
	"github.com/fleetdash/fleetdash/internal/workflow"
)

// StatusSource records how the current status was reached.
type StatusSource string

const (
	// SourceDirect marks a pre-approval status set by an explicit user action.
	SourceDirect StatusSource = "direct"
	// SourceDerived marks a status computed from workflow stages.
	SourceDerived StatusSource = "derived"
	// SourceManual marks a kanban override that bypassed derivation.
	SourceManual StatusSource = "manual"
)

// CustomerDetails is the contact snapshot taken at quote time.
type CustomerDetails struct {
	RecipientName string `json:"recipientName" validate:"required,max=200"`
	CompanyName   string `json:"companyName" validate:"required,max=200"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone,omitempty" validate:"omitempty,max=50"`
	ClientID      string `json:"clientId,omitempty" validate:"omitempty,max=64"`
}

// Quote is the aggregate persisted as a single document.
type Quote struct {
	ID              int64            `json:"id"`
	Status          workflow.Status  `json:"status"`
	StatusSource    StatusSource     `json:"statusSource"`
	CustomerDetails CustomerDetails  `json:"customerDetails"`
	Parts           []pricing.Part   `json:"parts"`
	TradeIn         json.RawMessage  `json:"tradeIn,omitempty"`
	WorkflowStages  workflow.Stages  `json:"workflowStages,omitempty"`
	BankRef         string           `json:"bankRef,omitempty"`
	Total           decimal.Decimal  `json:"total"`
	Version         int64            `json:"version"`
	SentAt          *time.Time       `json:"sentAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Column is the kanban column the quote is displayed in.
func (q Quote) Column() workflow.FulfillmentStatus {
	return q.Status.Column()
}

// Approved reports whether the approval stage is completed.
func (q Quote) Approved() bool {
	return workflow.Approved(q.WorkflowStages)
}

// Clone returns a deep copy so a failed mutation never leaks into the loaded quote.
func (q Quote) Clone() Quote {
	out := q
	if q.Parts != nil {
		out.Parts = make([]pricing.Part, len(q.Parts))
		for i, p := range q.Parts {
			cp := p
			if p.Accessories != nil {
				cp.Accessories = make([]pricing.Accessory, len(p.Accessories))
				copy(cp.Accessories, p.Accessories)
			}
			out.Parts[i] = cp
		}
	}
	if q.TradeIn != nil {
		out.TradeIn = append(json.RawMessage(nil), q.TradeIn...)
	}
	if q.WorkflowStages != nil {
		out.WorkflowStages = q.WorkflowStages.Clone()
	}
	if q.SentAt != nil {
		at := *q.SentAt
		out.SentAt = &at
	}
	return out
}

// PutResult reports the outcome of a whole-document write.
type PutResult struct {
	Version int64
	// Conflict is set when the stored version moved after the quote was loaded.
	// The write still happened.
	Conflict bool
}
