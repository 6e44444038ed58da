package billing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatINR renders an amount in Indian Rupee display convention:
// ₹ sign, lakh/crore digit grouping (12,34,567), paise only when non-zero.
func FormatINR(amount float64) string {
	neg := amount < 0 || math.Signbit(amount)
	amount = math.Abs(RoundMoney(amount))

	whole := int64(amount)
	paise := int64(math.Round((amount - float64(whole)) * 100))
	if paise == 100 { // rounding pushed us over a rupee
		whole++
		paise = 0
	}

	grouped := groupIndian(strconv.FormatInt(whole, 10))

	var b strings.Builder
	if neg && (whole != 0 || paise != 0) {
		b.WriteString("-")
	}
	b.WriteString("₹")
	b.WriteString(grouped)
	if paise != 0 {
		b.WriteString(fmt.Sprintf(".%02d", paise))
	}
	return b.String()
}

// groupIndian groups digits 3-then-2s: "1234567" -> "12,34,567".
func groupIndian(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var parts []string
	parts = append(parts, digits[n-3:])
	rest := digits[:n-3]
	for len(rest) > 2 {
		parts = append(parts, rest[len(rest)-2:])
		rest = rest[:len(rest)-2]
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	// reverse
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
		if i > 0 {
			b.WriteString(",")
		}
	}
	return b.String()
}
