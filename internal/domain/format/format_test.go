package format

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		days int
		want string
	}{
		{0, "0 days"},
		{-3, "0 days"},
		{1, "1 day"},
		{6, "6 days"},
		{7, "1 week"},
		{15, "2 weeks, 1 day"},
		{30, "1 month"},
		{31, "1 month, 1 day"},
		{60, "2 months"},
		{365, "1 year"},
		{400, "1 year, 1 month, 5 days"},
		{800, "2 years, 2 months, 1 week, 3 days"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Duration(tc.days), "days=%d", tc.days)
	}
}

func TestAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"75", "75"},
		{"75.50", "75.5"},
		{"999.999", "999.999"},
		{"1000", "1,000"},
		{"1234567.8900", "1,234,567.89"},
		{"300.00", "300"},
		{"-1500.25", "-1,500.25"},
	}
	for _, tc := range cases {
		d := decimal.RequireFromString(tc.in)
		assert.Equal(t, tc.want, Amount(d), "in=%s", tc.in)
	}
}
