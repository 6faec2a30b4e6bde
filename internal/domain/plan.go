/**
 * @description
 * The subscription plan catalog. Plans are fixed tiers; prices are KRW per
 * billing period.
 */
package domain

// Billing periods.
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// Plan IDs.
const (
	PlanWeekly  = "weekly"
	PlanMonthly = "monthly"
)

var planCatalog = []PlanSelection{
	{PlanID: PlanWeekly, Name: "주간 구독", UnitPrice: 65000, Period: PeriodWeek},
	{PlanID: PlanMonthly, Name: "월간 프리미엄 구독", UnitPrice: 289000, Period: PeriodMonth},
}

// Plans returns the subscription plan catalog.
func Plans() []PlanSelection {
	out := make([]PlanSelection, len(planCatalog))
	copy(out, planCatalog)
	return out
}

// FindPlan looks up a plan by ID.
func FindPlan(planID string) (PlanSelection, bool) {
	for _, p := range planCatalog {
		if p.PlanID == planID {
			return p, true
		}
	}
	return PlanSelection{}, false
}
