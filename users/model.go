// Package users owns the mapping from public-key identity to admission
// state and balance: a Postgres-backed repository fronted by a
// short-lived Redis negative-lookup cache and an optional webhook
// lookup for identities the datastore has never seen.
package users

import (
	"fmt"
	"math/big"
	"time"
)

// User mirrors the persisted users table. Balance is kept as the
// column's textual representation so reads never round-trip through a
// floating-point type; callers convert via Balance().
type User struct {
	Pubkey        string     `gorm:"column:pubkey;primaryKey"`
	IsAdmitted    bool       `gorm:"column:is_admitted"`
	BalanceText   string     `gorm:"column:balance"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
	TosAcceptedAt *time.Time `gorm:"column:tos_accepted_at"`
}

// TableName pins the gorm table name regardless of pluralization rules.
func (User) TableName() string { return "users" }

// Balance parses the stored balance column into a big integer.
func (u *User) Balance() (*big.Int, error) {
	if u.BalanceText == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(u.BalanceText, 10)
	if !ok {
		return nil, fmt.Errorf("users: malformed balance %q for pubkey %s", u.BalanceText, u.Pubkey)
	}
	return v, nil
}
