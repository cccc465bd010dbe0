package normalizer

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePrice converts the heterogeneous price representations that show up
// in feeds (already-numeric, "$1,299.99", "24,99 €") into a positive float.
func parsePrice(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return checkPositive(v)
	case int:
		return checkPositive(float64(v))
	case int64:
		return checkPositive(float64(v))
	case string:
		return parsePriceString(v)
	case nil:
		return 0, fmt.Errorf("price is missing")
	default:
		return 0, fmt.Errorf("price has unsupported type %T", raw)
	}
}

func parsePriceString(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "$€£ ")
	cleaned = strings.TrimSuffix(cleaned, "USD")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("price is empty")
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		// "1,299.99": commas are thousands separators.
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma:
		// Lone comma with two trailing digits is a decimal comma ("24,99");
		// otherwise it separates thousands ("1,299").
		idx := strings.LastIndex(cleaned, ",")
		if len(cleaned)-idx-1 == 2 && strings.Count(cleaned, ",") == 1 {
			cleaned = cleaned[:idx] + "." + cleaned[idx+1:]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q is not numeric", s)
	}
	return checkPositive(v)
}

func checkPositive(v float64) (float64, error) {
	if v <= 0 {
		return 0, fmt.Errorf("price %.2f is not positive", v)
	}
	return v, nil
}
