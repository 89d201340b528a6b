// Package stats replays quote workflow state into dashboard counters.
package stats

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetdash/fleetdash/internal/pricing"
	"github.com/fleetdash/fleetdash/internal/quotes"
	"github.com/fleetdash/fleetdash/internal/workflow"
)

// Dashboard holds the month-over-month order figures.
type Dashboard struct {
	ThisMonthOrders    int                                `json:"thisMonthOrders"`
	LastMonthOrders    int                                `json:"lastMonthOrders"`
	OrdersChange       string                             `json:"ordersChange"`
	Outstanding        int                                `json:"outstanding"`
	Completed          int                                `json:"completed"`
	ThisMonthCompleted int                                `json:"thisMonthCompleted"`
	LastMonthCompleted int                                `json:"lastMonthCompleted"`
	CompletedChange    string                             `json:"completedChange"`
	Revenue            decimal.Decimal                    `json:"revenue"`
	CompletedRevenue   decimal.Decimal                    `json:"completedRevenue"`
	ThisMonthRevenue   decimal.Decimal                    `json:"thisMonthRevenue"`
	LastMonthRevenue   decimal.Decimal                    `json:"lastMonthRevenue"`
	RevenueChange      string                             `json:"revenueChange"`
	Profit             decimal.Decimal                    `json:"profit"`
	Columns            map[workflow.FulfillmentStatus]int `json:"columns"`
	GeneratedAt        time.Time                          `json:"generatedAt"`
}

type monthKey struct {
	year  int
	month time.Month
}

func keyOf(t time.Time, loc *time.Location) monthKey {
	local := t.In(loc)
	return monthKey{year: local.Year(), month: local.Month()}
}

// Aggregate computes the dashboard for quotes as of now. Only approved quotes
// count toward order figures. Months are calendar months in loc.
func Aggregate(list []quotes.Quote, now time.Time, loc *time.Location) Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	thisMonth := keyOf(now, loc)
	local := now.In(loc)
	lastMonth := keyOf(time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0), loc)

	out := Dashboard{
		Revenue:          decimal.Zero,
		CompletedRevenue: decimal.Zero,
		ThisMonthRevenue: decimal.Zero,
		LastMonthRevenue: decimal.Zero,
		Columns:          make(map[workflow.FulfillmentStatus]int, len(workflow.FulfillmentColumns)),
		GeneratedAt:      now.UTC(),
	}
	for _, col := range workflow.FulfillmentColumns {
		out.Columns[col] = 0
	}

	for _, q := range list {
		if !workflow.Approved(q.WorkflowStages) {
			continue
		}
		total := pricing.QuoteTotal(q.Parts)
		out.Revenue = out.Revenue.Add(total)
		out.Columns[q.Column()]++

		if at := approvedAt(q.WorkflowStages); at != nil {
			switch keyOf(*at, loc) {
			case thisMonth:
				out.ThisMonthOrders++
				out.ThisMonthRevenue = out.ThisMonthRevenue.Add(total)
			case lastMonth:
				out.LastMonthOrders++
				out.LastMonthRevenue = out.LastMonthRevenue.Add(total)
			}
		}

		if !q.Status.IsCompleted() {
			out.Outstanding++
			continue
		}
		out.Completed++
		out.CompletedRevenue = out.CompletedRevenue.Add(total)
		if at := q.WorkflowStages.Get(workflow.StageLicenseAndReg).CompletedAt; at != nil {
			switch keyOf(*at, loc) {
			case thisMonth:
				out.ThisMonthCompleted++
			case lastMonth:
				out.LastMonthCompleted++
			}
		}
	}

	out.OrdersChange = PercentChange(decimal.NewFromInt(int64(out.LastMonthOrders)), decimal.NewFromInt(int64(out.ThisMonthOrders)))
	out.CompletedChange = PercentChange(decimal.NewFromInt(int64(out.LastMonthCompleted)), decimal.NewFromInt(int64(out.ThisMonthCompleted)))
	out.RevenueChange = PercentChange(out.LastMonthRevenue, out.ThisMonthRevenue)
	// No cost of goods is tracked.
	out.Profit = out.CompletedRevenue
	return out
}

func approvedAt(stages workflow.Stages) *time.Time {
	stage := stages.Get(workflow.StageApproveQuote)
	if stage.ApprovedAt != nil {
		return stage.ApprovedAt
	}
	return stage.CompletedAt
}

var hundred = decimal.NewFromInt(100)

// PercentChange formats (current-previous)/previous*100 to one decimal place.
// A zero previous yields "+100%" for a nonzero current and "0%" otherwise.
func PercentChange(previous, current decimal.Decimal) string {
	if previous.IsZero() {
		if current.IsZero() {
			return "0%"
		}
		return "+100%"
	}
	pct := current.Sub(previous).Div(previous).Mul(hundred).Round(1)
	s := strings.TrimSuffix(pct.StringFixed(1), ".0")
	if pct.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}
