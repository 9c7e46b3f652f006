// Package format holds the pure display helpers used in notifications and API responses.
package format

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	daysPerWeek  = 7
	daysPerMonth = 30
	daysPerYear  = 365
)

// Duration breaks a number of days into years, months, weeks and days using fixed
// 365/30/7-day buckets, e.g. 400 -> "1 year, 1 month, 5 days".
func Duration(days int) string {
	if days <= 0 {
		return "0 days"
	}
	units := []struct {
		size int
		name string
	}{
		{daysPerYear, "year"},
		{daysPerMonth, "month"},
		{daysPerWeek, "week"},
		{1, "day"},
	}
	var parts []string
	for _, u := range units {
		n := days / u.size
		if n == 0 {
			continue
		}
		days -= n * u.size
		parts = append(parts, plural(n, u.name))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Amount renders a decimal for display: trailing zeros trimmed, thousands grouped
// once the integer part reaches four digits.
func Amount(d decimal.Decimal) string {
	s := d.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		frac = strings.TrimRight(frac, "0")
	}
	var b strings.Builder
	b.WriteString(sign)
	if len(intPart) > 3 {
		n := d.Abs().Truncate(0).BigInt()
		b.WriteString(humanize.BigComma(n))
	} else {
		b.WriteString(intPart)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
