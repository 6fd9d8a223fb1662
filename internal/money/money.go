// Package money renders amounts in the store's single fixed locale:
// Indian Rupees with en-IN digit grouping.
package money

import (
	"fmt"
	"math"
	"strings"
)

// FormatINR renders an amount as an INR display string with two fraction
// digits and Indian grouping, e.g. 123456.78 -> "₹1,23,456.78". The last
// group before the decimal point holds three digits, every group above it
// holds two. NaN and ±Inf render as zero, the same rule the totals math
// applies to non-numeric input.
func FormatINR(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}

	neg := amount < 0
	if neg {
		amount = -amount
	}

	fixed := fmt.Sprintf("%.2f", amount)
	dot := strings.IndexByte(fixed, '.')
	intPart, fracPart := fixed[:dot], fixed[dot+1:]

	grouped := groupIndian(intPart)
	if neg {
		return "-₹" + grouped + "." + fracPart
	}
	return "₹" + grouped + "." + fracPart
}

func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	head := digits[:len(digits)-3]
	tail := digits[len(digits)-3:]

	groups := make([]string, 0, len(head)/2+2)
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	groups = append(groups, tail)
	return strings.Join(groups, ",")
}
