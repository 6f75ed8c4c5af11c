package anomaly

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseContamination parses the expected outlier fraction from either
// p-notation (p10 = 10%) or decimal notation (0.1).
//
// An empty string yields DefaultContamination. The result must lie in (0, 0.5].
func ParseContamination(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultContamination, nil
	}

	var c float64
	if strings.HasPrefix(strings.ToLower(s), "p") {
		pct, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid p-notation %q: %w", s, err)
		}
		c = pct / 100
	} else {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid contamination %q: %w", s, err)
		}
		c = v
	}

	if err := ValidateContamination(c); err != nil {
		return 0, err
	}
	return c, nil
}

// ValidateContamination checks that c lies in (0, 0.5].
func ValidateContamination(c float64) error {
	if !(c > 0 && c <= 0.5) {
		return fmt.Errorf("contamination %v out of range (0, 0.5]", c)
	}
	return nil
}

// FormatContamination renders c in p-notation for logs ("p10").
func FormatContamination(c float64) string {
	pct := c * 100
	if pct == float64(int(pct)) {
		return fmt.Sprintf("p%d", int(pct))
	}
	return fmt.Sprintf("p%.1f", pct)
}
