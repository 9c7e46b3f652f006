package model

import (
	"time"

	"subscription-ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is the ledger's view of a community member: an identity with a point balance.
// Identity data is owned elsewhere; the balance is only mutated by the ledger.
type User struct {
	ID         string
	TelegramID int64
	Username   string
	Balance    decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewUser(id string, tgID int64, username string, balance decimal.Decimal) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 || username == "" {
		return nil, domain.ErrInvalidArgument
	}
	if balance.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &User{
		ID:         id,
		TelegramID: tgID,
		Username:   username,
		Balance:    balance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// CanAfford reports whether the balance covers price.
func (u *User) CanAfford(price decimal.Decimal) bool {
	return u.Balance.GreaterThanOrEqual(price)
}
