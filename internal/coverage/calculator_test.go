package coverage_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/egannguyen/autoparts-marketplace/internal/coverage"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCoverage_CapsByLevel(t *testing.T) {
	tests := []struct {
		amount string
		level  entity.ProtectionLevel
		want   string
		cap    string
	}{
		{"2000", entity.LevelBasic, "1000", "1000"},
		{"750.25", entity.LevelBasic, "750.25", "1000"},
		{"7000", entity.LevelPremium, "5000", "5000"},
		{"9999.99", entity.LevelExtended, "9999.99", "10000"},
		{"25000", entity.LevelExtended, "10000", "10000"},
		{"500", entity.ProtectionLevel("platinum"), "500", "1000"},
		{"0.005", entity.LevelBasic, "0", "1000"},
		{"10.005", entity.LevelBasic, "10", "1000"},
		{"999.995", entity.LevelBasic, "999.99", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+"/"+string(tt.level), func(t *testing.T) {
			res := coverage.Coverage(dec(tt.amount), tt.level)
			assert.True(t, res.Amount.Equal(dec(tt.want)), "amount %s", res.Amount)
			assert.True(t, res.Cap.Equal(dec(tt.cap)), "cap %s", res.Cap)
			assert.True(t, res.Percentage.Equal(dec("100")))
			assert.True(t, res.Amount.LessThanOrEqual(dec(tt.amount)), "coverage above amount")
		})
	}
}

func TestCoverage_NegativeAmountClampsToZero(t *testing.T) {
	res := coverage.Coverage(dec("-10"), entity.LevelPremium)
	assert.True(t, res.Amount.IsZero())
}

func TestCost(t *testing.T) {
	assert.True(t, coverage.Cost(dec("2000"), entity.LevelBasic, false).Equal(dec("100")))
	assert.True(t, coverage.Cost(dec("200"), entity.LevelPremium, false).Equal(dec("16")))
	assert.True(t, coverage.Cost(dec("333.33"), entity.LevelExtended, false).Equal(dec("40")))
	assert.True(t, coverage.Cost(dec("19.99"), entity.LevelBasic, false).Equal(dec("1")))
	assert.True(t, coverage.Cost(dec("2000"), entity.LevelExtended, true).IsZero())
	assert.True(t, coverage.Cost(dec("0"), entity.LevelBasic, false).IsZero())
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 60, coverage.Duration(entity.KindPurchaseProtection, entity.LevelPremium))
	assert.Equal(t, 15, coverage.Duration(entity.KindReturnGuarantee, entity.LevelBasic))
	assert.Equal(t, 365, coverage.Duration(entity.KindClaimProtection, entity.LevelExtended))
	assert.Equal(t, 30, coverage.Duration(entity.WarrantyKind("roadside"), entity.LevelPremium))
	assert.Equal(t, 30, coverage.Duration(entity.KindClaimProtection, entity.ProtectionLevel("gold")))
}

func TestTerms(t *testing.T) {
	basic := coverage.Terms(entity.KindPurchaseProtection, entity.LevelBasic)
	assert.True(t, basic.CoversDefectiveProducts)
	assert.True(t, basic.CoversNonDelivery)
	assert.True(t, basic.CoversNotAsDescribed)
	assert.False(t, basic.CoversLateDelivery)
	assert.Equal(t, 30, basic.ReturnWindowDays)
	assert.Equal(t, 90, basic.ClaimWindowDays)

	premium := coverage.Terms(entity.KindPurchaseProtection, entity.LevelPremium)
	assert.True(t, premium.CoversLateDelivery)
	assert.Equal(t, 45, premium.ReturnWindowDays)
	assert.Equal(t, 120, premium.ClaimWindowDays)

	extended := coverage.Terms(entity.KindReturnGuarantee, entity.LevelExtended)
	assert.True(t, extended.CoversLateDelivery)
	assert.Equal(t, 60, extended.ReturnWindowDays)
	assert.Equal(t, 180, extended.ClaimWindowDays)
}

func TestQuoteFor(t *testing.T) {
	q := coverage.QuoteFor(dec("2000"), entity.KindPurchaseProtection, entity.LevelBasic, false)
	assert.True(t, q.Coverage.Amount.Equal(dec("1000")))
	assert.True(t, q.Cost.Equal(dec("100")))
	assert.Equal(t, 30, q.DurationDays)
	assert.False(t, q.Terms.CoversLateDelivery)
}
