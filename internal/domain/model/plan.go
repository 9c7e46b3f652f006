package model

import (
	"subscription-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Discount reduces a plan's price either by a percentage or by a fixed amount.
type Discount struct {
	Type  DiscountType    `yaml:"type" json:"type"`
	Value decimal.Decimal `yaml:"value" json:"value"`
}

// Plan is an immutable catalog entry a user can buy with points.
type Plan struct {
	ID            string          `yaml:"id" json:"id"`
	Title         string          `yaml:"title" json:"title"`
	Description   string          `yaml:"description" json:"description,omitempty"`
	Price         decimal.Decimal `yaml:"price" json:"price"`
	DurationDays  int             `yaml:"duration_days" json:"duration_days"`
	GrantedRoleID string          `yaml:"role_id" json:"role_id"`
	Discount      *Discount       `yaml:"discount,omitempty" json:"discount,omitempty"`
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// Validate checks the invariants a catalog entry must hold.
func (p *Plan) Validate() error {
	if p.IsZero() || p.Title == "" || p.DurationDays <= 0 || p.Price.IsNegative() {
		return domain.ErrInvalidArgument
	}
	if d := p.Discount; d != nil {
		if d.Value.IsNegative() {
			return domain.ErrInvalidArgument
		}
		switch d.Type {
		case DiscountPercent:
			if d.Value.GreaterThan(decimal.NewFromInt(100)) {
				return domain.ErrInvalidArgument
			}
		case DiscountFixed:
		default:
			return domain.ErrInvalidArgument
		}
	}
	return nil
}

// FinalPrice applies the discount and returns the price to charge plus the amount taken off.
// The final price never drops below zero, so the discount amount never exceeds the price.
func (p *Plan) FinalPrice() (final, discount decimal.Decimal) {
	return ApplyDiscount(p.Price, p.Discount)
}

// ApplyDiscount: percent multiplies, fixed subtracts, result floored at 0.
func ApplyDiscount(price decimal.Decimal, d *Discount) (final, discount decimal.Decimal) {
	if d == nil || d.Value.IsZero() {
		return price, decimal.Zero
	}
	switch d.Type {
	case DiscountPercent:
		final = price.Mul(decimal.NewFromInt(100).Sub(d.Value)).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		final = price.Sub(d.Value)
	default:
		return price, decimal.Zero
	}
	if final.IsNegative() {
		final = decimal.Zero
	}
	return final, price.Sub(final)
}
