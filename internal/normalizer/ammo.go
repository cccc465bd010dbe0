package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ammobase/harvester/pkg/types"
)

// caliberPatterns is an ordered table; the first matching pattern wins, so
// more specific notations must come before the generic ones they contain
// (e.g. 5.56 NATO before .223, 7.62x39 before plain 308).
var caliberPatterns = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\b5\.56(?:\s*x\s*45)?(?:\s*mm)?(?:\s*nato)?\b`), "5.56 NATO"},
	{regexp.MustCompile(`(?i)\b\.?223(?:\s*rem(?:ington)?)?\b`), ".223 Remington"},
	{regexp.MustCompile(`(?i)\b7\.62\s*x\s*39(?:\s*mm)?\b`), "7.62x39mm"},
	{regexp.MustCompile(`(?i)\b7\.62\s*x\s*51(?:\s*mm)?(?:\s*nato)?\b`), "7.62 NATO"},
	{regexp.MustCompile(`(?i)\b7\.62\s*x\s*54(?:r)?\b`), "7.62x54R"},
	{regexp.MustCompile(`(?i)\b\.?308(?:\s*win(?:chester)?)?\b`), ".308 Winchester"},
	{regexp.MustCompile(`(?i)\b30-06\b|\b\.30-06\b`), ".30-06 Springfield"},
	{regexp.MustCompile(`(?i)\b300\s*(?:blk|blackout|aac)\b`), "300 Blackout"},
	{regexp.MustCompile(`(?i)\b6\.5\s*(?:creedmoor|cm)\b`), "6.5 Creedmoor"},
	{regexp.MustCompile(`(?i)\b9\s*mm(?:\s*luger)?\b|\b9x19(?:\s*mm)?\b`), "9mm Luger"},
	{regexp.MustCompile(`(?i)\b\.?45\s*(?:acp|auto)\b`), ".45 ACP"},
	{regexp.MustCompile(`(?i)\b\.?40\s*(?:s&w|sw|cal)\b`), ".40 S&W"},
	{regexp.MustCompile(`(?i)\b\.?380(?:\s*(?:acp|auto))?\b`), ".380 ACP"},
	{regexp.MustCompile(`(?i)\b10\s*mm(?:\s*auto)?\b`), "10mm Auto"},
	{regexp.MustCompile(`(?i)\b\.?357\s*mag(?:num)?\b`), ".357 Magnum"},
	{regexp.MustCompile(`(?i)\b\.?38\s*(?:spl|special)\b`), ".38 Special"},
	{regexp.MustCompile(`(?i)\b\.?22\s*lr\b|\b22\s*long\s*rifle\b`), ".22 LR"},
	{regexp.MustCompile(`(?i)\b12\s*(?:ga|gauge)\b`), "12 Gauge"},
	{regexp.MustCompile(`(?i)\b20\s*(?:ga|gauge)\b`), "20 Gauge"},
	{regexp.MustCompile(`(?i)\b17\s*hmr\b`), ".17 HMR"},
}

// extractCaliber returns the canonical caliber for a product title, or ""
// when no pattern matches.
func extractCaliber(text string) string {
	for _, p := range caliberPatterns {
		if p.re.MatchString(text) {
			return p.canonical
		}
	}
	return ""
}

// Grain weights outside this range are noise (e.g. a model number).
const (
	minGrainWeight = 15
	maxGrainWeight = 750
)

var grainRe = regexp.MustCompile(`(?i)\b(\d{2,3})\s*(?:gr|grain|grains)\b`)

// extractGrainWeight pulls the bullet weight from a title, bounded to a
// plausible range.
func extractGrainWeight(text string) int {
	m := grainRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < minGrainWeight || n > maxGrainWeight {
		return 0
	}
	return n
}

// roundCountRes cover the textual conventions for pack size. Each capture
// group 1 is the count.
var roundCountRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\d{1,5})\s*(?:rounds|round|rds|rd)\b`),
	regexp.MustCompile(`(?i)\bbox\s+of\s+(\d{1,5})\b`),
	regexp.MustCompile(`(?i)\bcase\s+of\s+(\d{1,5})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,5})\s*(?:ct|count)\b`),
	regexp.MustCompile(`(?i)\b(\d{1,5})\s*(?:/|per\s+)box\b`),
	regexp.MustCompile(`(?i)\b(\d{1,5})-pack\b`),
}

// extractRoundCount pulls the pack size from a title. Numbers that are part
// of caliber notation ("7.62x39") are explicitly rejected: a match whose
// digits are preceded by 'x' glued to the previous token is caliber, not a
// round count.
func extractRoundCount(text string) int {
	for _, re := range roundCountRes {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			start := m[2] // start of capture group 1
			if partOfCaliberNotation(text, start) {
				continue
			}
			n, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil || n <= 0 {
				continue
			}
			return n
		}
	}
	return 0
}

// partOfCaliberNotation reports whether the digits starting at pos follow
// an 'x' that is itself glued to a digit, as in "7.62x39".
func partOfCaliberNotation(text string, pos int) bool {
	if pos < 2 {
		return false
	}
	prev := text[pos-1]
	if prev != 'x' && prev != 'X' {
		return false
	}
	return text[pos-2] >= '0' && text[pos-2] <= '9'
}

var caseMaterials = []struct {
	keyword  string
	material string
}{
	{"nickel-plated", "nickel-plated brass"},
	{"nickel plated", "nickel-plated brass"},
	{"brass", "brass"},
	{"steel", "steel"},
	{"aluminum", "aluminum"},
	{"aluminium", "aluminum"},
}

// extractCaseMaterial detects the case material keyword in a title.
func extractCaseMaterial(text string) string {
	lower := strings.ToLower(text)
	for _, cm := range caseMaterials {
		if strings.Contains(lower, cm.keyword) {
			return cm.material
		}
	}
	return ""
}

var nonDigits = regexp.MustCompile(`\D`)

// normalizeUPC strips non-digits and normalizes to 12 digits: a 13-digit
// EAN with a leading zero is trimmed, shorter codes are left-padded.
// Returns "" when the code cannot be a UPC.
func normalizeUPC(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) == 13 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) > 12 || len(digits) < 6 {
		return ""
	}
	for len(digits) < 12 {
		digits = "0" + digits
	}
	return digits
}

var spaceRe = regexp.MustCompile(`\s+`)

// deriveProductID computes the canonical product identity: the normalized
// UPC when present, otherwise a stable hash over brand, caliber, grain and
// the normalized name. Hash collisions resolve last-write-wins at the store.
func deriveProductID(item types.NormalizedProduct) string {
	if upc := normalizeUPC(item.UPC); upc != "" {
		return upc
	}
	name := strings.ToLower(strings.TrimSpace(item.Name))
	name = spaceRe.ReplaceAllString(name, " ")
	key := fmt.Sprintf("%s|%s|%d|%s",
		strings.ToLower(item.Brand), item.Ammo.Caliber, item.Ammo.GrainWeight, name)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// enrichAmmo runs the domain-normalization step over a validated product.
func enrichAmmo(item *types.NormalizedProduct) {
	item.UPC = normalizeUPC(item.UPC)
	item.Ammo.Caliber = extractCaliber(item.Name)
	item.Ammo.GrainWeight = extractGrainWeight(item.Name)
	item.Ammo.RoundCount = extractRoundCount(item.Name)
	item.Ammo.CaseMaterial = extractCaseMaterial(item.Name)
	if item.Ammo.RoundCount > 0 {
		item.Ammo.CostPerRound = item.Price / float64(item.Ammo.RoundCount)
	}
	item.ProductID = deriveProductID(*item)
}
