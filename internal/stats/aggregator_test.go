package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdash/fleetdash/internal/pricing"
	"github.com/fleetdash/fleetdash/internal/quotes"
	"github.com/fleetdash/fleetdash/internal/workflow"
)

func at(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func part(price string, qty int) pricing.Part {
	return pricing.Part{Quantity: qty, Price: decimal.RequireFromString(price)}
}

func approvedQuote(approved *time.Time, status workflow.FulfillmentStatus, price string) quotes.Quote {
	return quotes.Quote{
		Status: workflow.Status(status),
		Parts:  []pricing.Part{part(price, 1)},
		WorkflowStages: workflow.Stages{
			workflow.StageApproveQuote: {State: workflow.StateCompleted, CompletedAt: approved, ApprovedAt: approved},
		},
	}
}

func completedQuote(approved, licensed *time.Time, price string) quotes.Quote {
	q := approvedQuote(approved, workflow.ColumnCompleted, price)
	q.WorkflowStages[workflow.StagePreDeliveryJobCard] = workflow.Stage{State: workflow.StateCompleted, CompletedAt: approved}
	q.WorkflowStages[workflow.StageApplyForFinance] = workflow.Stage{State: workflow.StateCompleted, CompletedAt: approved}
	q.WorkflowStages[workflow.StageWaitingForStock] = workflow.Stage{State: workflow.StateSkipped, SkippedAt: approved}
	q.WorkflowStages[workflow.StageLicenseAndReg] = workflow.Stage{State: workflow.StateCompleted, CompletedAt: licensed}
	return q
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		previous string
		current  string
		want     string
	}{
		{"0", "0", "0%"},
		{"0", "5", "+100%"},
		{"10", "5", "-50%"},
		{"5", "10", "+100%"},
		{"4", "4", "0%"},
		{"3", "4", "+33.3%"},
		{"3", "2", "-33.3%"},
		{"8", "9", "+12.5%"},
	}
	for _, tt := range tests {
		t.Run(tt.previous+"->"+tt.current, func(t *testing.T) {
			got := PercentChange(decimal.RequireFromString(tt.previous), decimal.RequireFromString(tt.current))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregateCountsApprovedQuotesOnly(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	list := []quotes.Quote{
		{Status: workflow.Status(workflow.StatusDraft), Parts: []pricing.Part{part("1000", 1)}},
		{Status: workflow.Status(workflow.StatusSent), Parts: []pricing.Part{part("2000", 1)}},
		approvedQuote(at(2025, time.March, 2), workflow.ColumnAwaitingDelivery, "100"),
		approvedQuote(at(2025, time.March, 9), workflow.ColumnAwaitingBank, "200"),
		approvedQuote(at(2025, time.February, 20), workflow.ColumnPreDeliveryInspection, "300"),
		completedQuote(at(2025, time.February, 1), at(2025, time.March, 10), "400"),
		completedQuote(at(2025, time.January, 5), at(2025, time.February, 3), "500"),
	}

	got := Aggregate(list, now, time.UTC)

	assert.Equal(t, 2, got.ThisMonthOrders)
	assert.Equal(t, 2, got.LastMonthOrders)
	assert.Equal(t, "0%", got.OrdersChange)
	assert.Equal(t, 3, got.Outstanding)
	assert.Equal(t, 2, got.Completed)
	assert.Equal(t, 1, got.ThisMonthCompleted)
	assert.Equal(t, 1, got.LastMonthCompleted)
	assert.Equal(t, "0%", got.CompletedChange)
	assert.True(t, decimal.NewFromInt(1500).Equal(got.Revenue), got.Revenue.String())
	assert.True(t, decimal.NewFromInt(900).Equal(got.CompletedRevenue))
	assert.True(t, decimal.NewFromInt(300).Equal(got.ThisMonthRevenue))
	assert.True(t, decimal.NewFromInt(700).Equal(got.LastMonthRevenue))
	assert.Equal(t, "-57.1%", got.RevenueChange)
	assert.True(t, got.Profit.Equal(got.CompletedRevenue))
	assert.Equal(t, map[workflow.FulfillmentStatus]int{
		workflow.ColumnNewOrders:             0,
		workflow.ColumnAwaitingDelivery:      1,
		workflow.ColumnPreDeliveryInspection: 1,
		workflow.ColumnAwaitingBank:          1,
		workflow.ColumnCompleted:             2,
	}, got.Columns)
	assert.Equal(t, now, got.GeneratedAt)
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), nil)
	assert.Zero(t, got.ThisMonthOrders)
	assert.Equal(t, "0%", got.OrdersChange)
	assert.Equal(t, "0%", got.RevenueChange)
	assert.True(t, got.Revenue.IsZero())
	require.Len(t, got.Columns, len(workflow.FulfillmentColumns))
	for _, col := range workflow.FulfillmentColumns {
		assert.Zero(t, got.Columns[col])
	}
}

func TestAggregateJanuaryComparesWithDecember(t *testing.T) {
	now := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	list := []quotes.Quote{
		approvedQuote(at(2024, time.December, 28), workflow.ColumnAwaitingDelivery, "100"),
		approvedQuote(at(2025, time.January, 3), workflow.ColumnAwaitingDelivery, "100"),
		approvedQuote(at(2025, time.January, 4), workflow.ColumnAwaitingDelivery, "100"),
	}
	got := Aggregate(list, now, time.UTC)
	assert.Equal(t, 2, got.ThisMonthOrders)
	assert.Equal(t, 1, got.LastMonthOrders)
	assert.Equal(t, "+100%", got.OrdersChange)
}

func TestAggregateUsesLocationForMonthBoundaries(t *testing.T) {
	loc := time.FixedZone("SAST", 2*60*60)
	// 23:30 UTC on 31 March is 01:30 on 1 April in SAST.
	approved := time.Date(2025, time.March, 31, 23, 30, 0, 0, time.UTC)
	now := time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC)
	list := []quotes.Quote{approvedQuote(&approved, workflow.ColumnAwaitingDelivery, "100")}

	assert.Equal(t, 1, Aggregate(list, now, loc).ThisMonthOrders)
	assert.Equal(t, 1, Aggregate(list, now, time.UTC).LastMonthOrders)
}

func TestAggregateIncludesAccessoriesAndQuantity(t *testing.T) {
	now := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)
	q := approvedQuote(at(2025, time.June, 1), workflow.ColumnAwaitingDelivery, "100")
	q.Parts[0].Quantity = 3
	q.Parts[0].Accessories = []pricing.Accessory{{Quantity: 2, Price: decimal.NewFromInt(25)}}

	got := Aggregate([]quotes.Quote{q}, now, time.UTC)
	assert.True(t, decimal.NewFromInt(350).Equal(got.ThisMonthRevenue), got.ThisMonthRevenue.String())
}
