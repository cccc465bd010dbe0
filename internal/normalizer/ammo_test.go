package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ammobase/harvester/pkg/types"
)

func TestExtractCaliber(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"Federal American Eagle 9mm Luger 115gr FMJ", "9mm Luger"},
		{"Winchester 5.56x45mm NATO 55gr", "5.56 NATO"},
		{"PMC Bronze .223 Rem 55gr FMJ-BT", ".223 Remington"},
		{"Tula 7.62x39mm 122gr HP Steel Case", "7.62x39mm"},
		{"Hornady .308 Winchester 168gr ELD Match", ".308 Winchester"},
		{"CCI Standard Velocity 22 LR 40gr", ".22 LR"},
		{"Federal Premium 12 Gauge 00 Buck", "12 Gauge"},
		{"Hornady 6.5 Creedmoor 140gr", "6.5 Creedmoor"},
		{"Blazer Brass 45 ACP 230gr FMJ", ".45 ACP"},
		{"Garden Hose 50ft", ""},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, extractCaliber(tc.title), tc.title)
	}
}

func TestExtractCaliber_FirstMatchWins(t *testing.T) {
	// 5.56 is listed before .223: a title naming both resolves to 5.56.
	assert.Equal(t, "5.56 NATO", extractCaliber("Federal 5.56 NATO / .223 55gr"))
}

func TestExtractGrainWeight(t *testing.T) {
	tests := []struct {
		title    string
		expected int
	}{
		{"Federal 9mm 115gr FMJ", 115},
		{"Hornady 168 grain ELD Match", 168},
		{"Winchester 55 Grains FMJ", 55},
		{"Federal 9mm FMJ", 0},
		{"Model 900gr Target", 0}, // above plausible range
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, extractGrainWeight(tc.title), tc.title)
	}
}

func TestExtractRoundCount(t *testing.T) {
	tests := []struct {
		title    string
		expected int
	}{
		{"Federal 9mm 115gr FMJ 50 Rounds", 50},
		{"Blazer Brass 9mm Box of 50", 50},
		{"Wolf 7.62x39 Case of 1000", 1000},
		{"CCI 22LR 100ct Value Pack", 100},
		{"PMC 9mm 115gr 50/box", 50},
		{"Magtech 45 ACP 20rd", 20},
		{"Federal 9mm 115gr FMJ", 0},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, extractRoundCount(tc.title), tc.title)
	}
}

func TestExtractRoundCount_CaliberNotationGuard(t *testing.T) {
	// 39 in "7.62x39" is caliber notation, never a round count.
	assert.Equal(t, 0, extractRoundCount("Federal 7.62x39mm 123gr SP"))
	assert.Equal(t, 0, extractRoundCount("Tula 7.62x39 123gr"))

	// A real count elsewhere in the same title still extracts.
	assert.Equal(t, 20, extractRoundCount("Tula 7.62x39 123gr 20 rounds"))
}

func TestExtractCaseMaterial(t *testing.T) {
	assert.Equal(t, "brass", extractCaseMaterial("Blazer Brass 9mm"))
	assert.Equal(t, "steel", extractCaseMaterial("Tula Steel Case 7.62x39"))
	assert.Equal(t, "nickel-plated brass", extractCaseMaterial("Speer Nickel-Plated 9mm"))
	assert.Equal(t, "", extractCaseMaterial("Federal 9mm"))
}

func TestNormalizeUPC(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"029465088317", "029465088317"},
		{"0029465088317", "029465088317"}, // 13-digit EAN with leading zero
		{"29465088317", "029465088317"},   // left-padded to 12
		{"0-29465-08831-7", "029465088317"},
		{"12345", ""},              // too short
		{"12345678901234", ""},     // too long
		{"not-a-upc", ""},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, normalizeUPC(tc.raw), tc.raw)
	}
}

func TestDeriveProductID_PrefersUPC(t *testing.T) {
	item := types.NormalizedProduct{Name: "Federal 9mm", UPC: "029465088317"}
	assert.Equal(t, "029465088317", deriveProductID(item))
}

func TestDeriveProductID_HashIsStable(t *testing.T) {
	a := types.NormalizedProduct{
		Name:  "Federal 9mm 115gr FMJ",
		Brand: "Federal",
		Ammo:  types.AmmoAttributes{Caliber: "9mm Luger", GrainWeight: 115},
	}
	b := a
	b.Name = "federal  9MM 115gr FMJ" // case and spacing differences collapse

	assert.Equal(t, deriveProductID(a), deriveProductID(b))
	assert.Len(t, deriveProductID(a), 32)

	c := a
	c.Brand = "Winchester"
	assert.NotEqual(t, deriveProductID(a), deriveProductID(c))
}

func TestEnrichAmmo_CostPerRound(t *testing.T) {
	item := types.NormalizedProduct{Name: "Federal 9mm 115gr FMJ 50 Rounds", Price: 14.99}
	enrichAmmo(&item)

	assert.Equal(t, "9mm Luger", item.Ammo.Caliber)
	assert.Equal(t, 115, item.Ammo.GrainWeight)
	assert.Equal(t, 50, item.Ammo.RoundCount)
	assert.InDelta(t, 0.2998, item.Ammo.CostPerRound, 0.0001)
	assert.NotEmpty(t, item.ProductID)
}
