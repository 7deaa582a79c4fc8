package payment

import "github.com/boilerkit/boilerkit/internal/model"

// Plan is a static catalog entry. Prices here are display values only; the
// amounts actually charged come from the Stripe price objects.
type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	PriceMonthly int      `json:"price_monthly"` // cents
	PriceYearly  int      `json:"price_yearly"`  // cents
	Features     []string `json:"features"`
	Popular      bool     `json:"popular"`
}

var plans = []Plan{
	{
		ID:           model.SubscriptionPlanFree,
		Name:         "Free",
		Description:  "For trying things out",
		PriceMonthly: 0,
		PriceYearly:  0,
		Features: []string{
			"1 project",
			"Community support",
		},
	},
	{
		ID:           model.SubscriptionPlanStarter,
		Name:         "Starter",
		Description:  "For individuals and small teams",
		PriceMonthly: 900,
		PriceYearly:  9000,
		Features: []string{
			"5 projects",
			"Email support",
			"Basic analytics",
		},
	},
	{
		ID:           model.SubscriptionPlanProfessional,
		Name:         "Professional",
		Description:  "For growing businesses",
		PriceMonthly: 2900,
		PriceYearly:  29000,
		Features: []string{
			"Unlimited projects",
			"Priority support",
			"Advanced analytics",
			"Custom integrations",
		},
		Popular: true,
	},
	{
		ID:           model.SubscriptionPlanEnterprise,
		Name:         "Enterprise",
		Description:  "For large organizations",
		PriceMonthly: 9900,
		PriceYearly:  99000,
		Features: []string{
			"Everything in Professional",
			"Dedicated support",
			"SLA",
			"SSO",
		},
	},
}

// Plans returns the static plan catalog.
func Plans() []Plan {
	return plans
}

// PlanByID returns the catalog entry for a plan ID, or nil.
func PlanByID(id string) *Plan {
	for i := range plans {
		if plans[i].ID == id {
			return &plans[i]
		}
	}
	return nil
}
