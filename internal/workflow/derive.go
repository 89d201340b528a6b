package workflow

// rule is one row of the derivation table. Rules are evaluated top to bottom
// and the first match wins.
type rule struct {
	name   string
	match  func(Stages) bool
	status FulfillmentStatus
}

var rules = []rule{
	{
		name: "all fulfillment stages satisfied",
		match: func(st Stages) bool {
			return st.Completed(StagePreDeliveryJobCard) &&
				st.Completed(StageApplyForFinance) &&
				st.Satisfied(StageWaitingForStock) &&
				st.Completed(StageLicenseAndReg)
		},
		status: ColumnCompleted,
	},
	{
		// Licensing implies inspection-equivalent progress even when finance or stock is open.
		name: "approved and licensed",
		match: func(st Stages) bool {
			return st.Completed(StageApproveQuote) && st.Completed(StageLicenseAndReg)
		},
		status: ColumnPreDeliveryInspection,
	},
	{
		name: "approved and finance applied",
		match: func(st Stages) bool {
			return st.Completed(StageApproveQuote) && st.Completed(StageApplyForFinance)
		},
		status: ColumnAwaitingBank,
	},
	{
		name: "approved and job card done",
		match: func(st Stages) bool {
			return st.Completed(StageApproveQuote) && st.Completed(StagePreDeliveryJobCard)
		},
		status: ColumnPreDeliveryInspection,
	},
	{
		name: "approved",
		match: func(st Stages) bool {
			return st.Completed(StageApproveQuote)
		},
		status: ColumnAwaitingDelivery,
	},
}

// DeriveStatus evaluates the rule table over stages.
func DeriveStatus(stages Stages) FulfillmentStatus {
	status, _ := explain(stages)
	return status
}

// MatchedRule names the rule that produced the derived status, or "" for the fallback.
func MatchedRule(stages Stages) string {
	_, name := explain(stages)
	return name
}

func explain(stages Stages) (FulfillmentStatus, string) {
	for _, r := range rules {
		if r.match(stages) {
			return r.status, r.name
		}
	}
	return ColumnNewOrders, ""
}

// Approved reports whether the quote has passed the approval gate.
func Approved(stages Stages) bool {
	return stages.Completed(StageApproveQuote)
}

// Started reports whether any stage has been touched.
func Started(stages Stages) bool {
	return len(stages) > 0
}
