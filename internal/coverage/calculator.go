// Package coverage holds the pricing tables that turn a purchase amount and
// protection level into coverage, cost, duration and terms. Everything here
// is pure: unknown levels fall back to basic and unknown durations to 30 days.
package coverage

import (
	"github.com/shopspring/decimal"

	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

// DefaultDurationDays applies to any kind/level pair missing from the table.
const DefaultDurationDays = 30

var (
	hundredPercent = decimal.NewFromInt(100)

	caps = map[entity.ProtectionLevel]decimal.Decimal{
		entity.LevelBasic:    decimal.NewFromInt(1000),
		entity.LevelPremium:  decimal.NewFromInt(5000),
		entity.LevelExtended: decimal.NewFromInt(10000),
	}

	rates = map[entity.ProtectionLevel]decimal.Decimal{
		entity.LevelBasic:    decimal.RequireFromString("0.05"),
		entity.LevelPremium:  decimal.RequireFromString("0.08"),
		entity.LevelExtended: decimal.RequireFromString("0.12"),
	}

	durations = map[entity.WarrantyKind]map[entity.ProtectionLevel]int{
		entity.KindPurchaseProtection: {entity.LevelBasic: 30, entity.LevelPremium: 60, entity.LevelExtended: 90},
		entity.KindReturnGuarantee:    {entity.LevelBasic: 15, entity.LevelPremium: 30, entity.LevelExtended: 45},
		entity.KindClaimProtection:    {entity.LevelBasic: 90, entity.LevelPremium: 180, entity.LevelExtended: 365},
	}
)

// Result is the outcome of a coverage computation.
type Result struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	Cap        decimal.Decimal `json:"cap"`
}

// Quote bundles everything a caller shows before committing to a warranty.
type Quote struct {
	Coverage     Result               `json:"coverage"`
	Cost         decimal.Decimal      `json:"cost"`
	DurationDays int                  `json:"duration_days"`
	Terms        entity.WarrantyTerms `json:"terms"`
}

func normalize(level entity.ProtectionLevel) entity.ProtectionLevel {
	if level.Valid() {
		return level
	}
	return entity.LevelBasic
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cap is the maximum payout for a level.
func Cap(level entity.ProtectionLevel) decimal.Decimal {
	return caps[normalize(level)]
}

// Rate is the add-on price as a fraction of the purchase amount.
func Rate(level entity.ProtectionLevel) decimal.Decimal {
	return rates[normalize(level)]
}

// Coverage returns min(amount × percentage, cap). Percentage is 100% at every level.
// Sub-cent amounts are truncated so coverage never exceeds what was paid.
func Coverage(amount decimal.Decimal, level entity.ProtectionLevel) Result {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	limit := Cap(level)
	covered := amount.Mul(hundredPercent).Div(hundredPercent).Truncate(2)
	return Result{
		Amount:     decimal.Min(covered, limit),
		Percentage: hundredPercent,
		Cap:        limit,
	}
}

// Cost is zero for bundled warranties, otherwise round2(amount × rate).
func Cost(amount decimal.Decimal, level entity.ProtectionLevel, included bool) decimal.Decimal {
	if included || !amount.IsPositive() {
		return decimal.Zero
	}
	return round2(amount.Mul(Rate(level)))
}

// Duration is the protection window in days.
func Duration(kind entity.WarrantyKind, level entity.ProtectionLevel) int {
	if byLevel, ok := durations[kind]; ok {
		if days, ok := byLevel[level]; ok {
			return days
		}
	}
	return DefaultDurationDays
}

// Terms returns the coverage document for a level. Premium adds late
// delivery and longer windows; extended widens the windows again.
func Terms(_ entity.WarrantyKind, level entity.ProtectionLevel) entity.WarrantyTerms {
	terms := entity.WarrantyTerms{
		CoversDefectiveProducts: true,
		CoversNonDelivery:       true,
		CoversNotAsDescribed:    true,
		CoversLateDelivery:      false,
		ReturnWindowDays:        30,
		ClaimWindowDays:         90,
	}
	switch level {
	case entity.LevelPremium:
		terms.CoversLateDelivery = true
		terms.ReturnWindowDays = 45
		terms.ClaimWindowDays = 120
	case entity.LevelExtended:
		terms.CoversLateDelivery = true
		terms.ReturnWindowDays = 60
		terms.ClaimWindowDays = 180
	}
	return terms
}

// QuoteFor computes coverage, cost, duration and terms in one call.
func QuoteFor(amount decimal.Decimal, kind entity.WarrantyKind, level entity.ProtectionLevel, included bool) Quote {
	return Quote{
		Coverage:     Coverage(amount, level),
		Cost:         Cost(amount, level, included),
		DurationDays: Duration(kind, level),
		Terms:        Terms(kind, level),
	}
}
