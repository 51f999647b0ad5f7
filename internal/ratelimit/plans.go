package ratelimit

// Plan is a billing tier as reported by the identity layer.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
	PlanElite Plan = "elite"
)

// dailyLimits is the single source of truth for plan-tiered daily AI
// query ceilings. Every quota decision goes through DailyLimit.
var dailyLimits = map[Plan]int{
	PlanFree:  5,
	PlanPro:   100,
	PlanElite: 1000,
}

// DailyLimit returns the daily query ceiling for the plan.
// Unrecognized plans are treated as free.
func DailyLimit(plan Plan) int {
	if limit, ok := dailyLimits[plan]; ok {
		return limit
	}
	return dailyLimits[PlanFree]
}

// ParsePlan normalizes a raw plan string from a token claim.
func ParsePlan(raw string) Plan {
	switch Plan(raw) {
	case PlanFree, PlanPro, PlanElite:
		return Plan(raw)
	default:
		return PlanFree
	}
}
