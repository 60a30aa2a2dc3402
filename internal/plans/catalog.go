package plans

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/starter-billing/pkg/config"
	"github.com/angelmondragon/starter-billing/pkg/enums"
)

// Plan is one purchasable billing option.
type Plan struct {
	Slug          string              `json:"slug"`
	Name          string              `json:"name"`
	BillingPeriod enums.BillingPeriod `json:"billing_period"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      enums.Currency      `json:"currency"`
	PeriodDays    int                 `json:"period_days"`
}

// Catalog lists the plans offered alongside the free trial.
type Catalog struct {
	TrialDays int    `json:"trial_days"`
	Plans     []Plan `json:"plans"`
}

// NewCatalog builds the catalog from billing configuration.
func NewCatalog(cfg config.BillingConfig) (*Catalog, error) {
	currency, err := enums.ParseCurrency(cfg.Currency)
	if err != nil {
		return nil, err
	}
	monthly, err := cfg.MonthlyAmount()
	if err != nil {
		return nil, fmt.Errorf("monthly plan: %w", err)
	}
	yearly, err := cfg.YearlyAmount()
	if err != nil {
		return nil, fmt.Errorf("yearly plan: %w", err)
	}
	return &Catalog{
		TrialDays: cfg.TrialDays,
		Plans: []Plan{
			newPlan("pro-monthly", "Pro Monthly", enums.BillingPeriodMonthly, monthly, currency),
			newPlan("pro-yearly", "Pro Yearly", enums.BillingPeriodYearly, yearly, currency),
		},
	}, nil
}

func newPlan(slug, name string, period enums.BillingPeriod, amount decimal.Decimal, currency enums.Currency) Plan {
	return Plan{
		Slug:          slug,
		Name:          name,
		BillingPeriod: period,
		Amount:        amount,
		Currency:      currency,
		PeriodDays:    int(period.Length().Hours() / 24),
	}
}

// Find returns the plan billed on period.
func (c *Catalog) Find(period enums.BillingPeriod) (Plan, bool) {
	for _, plan := range c.Plans {
		if plan.BillingPeriod == period {
			return plan, true
		}
	}
	return Plan{}, false
}
