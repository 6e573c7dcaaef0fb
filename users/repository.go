package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"relaycore/webhooks"
)

// Repository owns findByPubkey/upsert/balance operations against the
// users table, consulting the negative cache and the pubkey-check /
// top-up webhooks as described by the user admission design.
type Repository struct {
	db    *gorm.DB
	cache *Cache
	hooks *webhooks.Client
}

// NewRepository builds a Repository over db, cache, and the shared
// webhook client (hooks may be nil if no webhook is configured).
func NewRepository(db *gorm.DB, cache *Cache, hooks *webhooks.Client) *Repository {
	return &Repository{db: db, cache: cache, hooks: hooks}
}

// FindByPubkey resolves pubkeyHex to a user, consulting the negative
// cache, then the datastore, then the pubkey-check webhook in that
// order. A webhook transport failure propagates as an error; a
// negative or missing webhook response caches the block and returns
// (nil, nil).
func (r *Repository) FindByPubkey(ctx context.Context, pubkeyHex string, topUpAmount *big.Int) (*User, error) {
	if r.cache != nil {
		blocked, err := r.cache.IsBlocked(ctx, pubkeyHex)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, nil
		}
	}

	var u User
	err := r.db.WithContext(ctx).Where("pubkey = ?", pubkeyHex).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("users: query %s: %w", pubkeyHex, err)
	}

	if r.hooks == nil {
		if r.cache != nil {
			_ = r.cache.MarkBlocked(ctx, pubkeyHex)
		}
		return nil, nil
	}

	resp, err := r.hooks.PubkeyCheck(ctx, pubkeyHex, topUpAmount)
	if err != nil {
		return nil, fmt.Errorf("users: pubkey-check webhook for %s: %w", pubkeyHex, err)
	}
	if !resp.IsAdmitted {
		if r.cache != nil {
			if err := r.cache.MarkBlocked(ctx, pubkeyHex); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	now := time.Now()
	balance := resp.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	fresh := &User{
		Pubkey:        pubkeyHex,
		IsAdmitted:    true,
		BalanceText:   balance.String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		TosAcceptedAt: &now,
	}
	if _, err := r.Upsert(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Upsert inserts u, or on a pubkey conflict merges every column except
// pubkey, balance, and created_at (those are insert-only).
func (r *Repository) Upsert(ctx context.Context, u *User) (int64, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pubkey"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_admitted", "updated_at", "tos_accepted_at"}),
	}).Create(u)
	if result.Error != nil {
		return 0, fmt.Errorf("users: upsert %s: %w", u.Pubkey, result.Error)
	}
	return result.RowsAffected, nil
}

// ErrUserNotFound is returned by GetBalanceStrict when no row matches
// the requested pubkey, distinguishing "unknown user" from "balance
// zero" for callers (the admin HTTP surface) that must tell them apart.
var ErrUserNotFound = errors.New("users: not found")

// GetBalanceStrict returns pubkeyHex's balance, or ErrUserNotFound if
// no such user exists. Used by the admin HTTP surface, which must
// return 404 rather than a zero balance for an unknown pubkey.
func (r *Repository) GetBalanceStrict(ctx context.Context, pubkeyHex string) (*big.Int, error) {
	var balanceText string
	err := r.db.WithContext(ctx).
		Table("users").
		Select("balance").
		Where("pubkey = ?", pubkeyHex).
		Row().
		Scan(&balanceText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: balance query for %s: %w", pubkeyHex, err)
	}
	v, ok := new(big.Int).SetString(balanceText, 10)
	if !ok {
		return nil, fmt.Errorf("users: malformed balance %q for %s", balanceText, pubkeyHex)
	}
	return v, nil
}

// GetBalance returns the submitter's balance, or zero if unknown.
func (r *Repository) GetBalance(ctx context.Context, pubkeyHex string) (*big.Int, error) {
	var balanceText string
	err := r.db.WithContext(ctx).
		Table("users").
		Select("balance").
		Where("pubkey = ?", pubkeyHex).
		Row().
		Scan(&balanceText)
	if errors.Is(err, sql.ErrNoRows) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: balance query for %s: %w", pubkeyHex, err)
	}
	v, ok := new(big.Int).SetString(balanceText, 10)
	if !ok {
		return nil, fmt.Errorf("users: malformed balance %q for %s", balanceText, pubkeyHex)
	}
	return v, nil
}

// IncrementBalance atomically adds amount to pubkeyHex's balance.
func (r *Repository) IncrementBalance(ctx context.Context, pubkeyHex string, amount *big.Int) error {
	return r.adjustBalance(ctx, pubkeyHex, amount, "+")
}

// DecrementBalance atomically subtracts amount from pubkeyHex's balance.
// Not rolled back if a later stage fails, per the pipeline's contract.
func (r *Repository) DecrementBalance(ctx context.Context, pubkeyHex string, amount *big.Int) error {
	return r.adjustBalance(ctx, pubkeyHex, amount, "-")
}

func (r *Repository) adjustBalance(ctx context.Context, pubkeyHex string, amount *big.Int, op string) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	sql := fmt.Sprintf("UPDATE users SET balance = CAST((CAST(balance AS NUMERIC) %s CAST(? AS NUMERIC)) AS TEXT), updated_at = ? WHERE pubkey = ?", op)
	result := r.db.WithContext(ctx).Exec(sql, amount.String(), time.Now(), pubkeyHex)
	if result.Error != nil {
		return fmt.Errorf("users: adjust balance for %s: %w", pubkeyHex, result.Error)
	}
	return nil
}

// TopUpPubkey invokes the configured top-up webhook and, on success,
// credits amount (the amount requested from the webhook) to the
// submitter's balance.
func (r *Repository) TopUpPubkey(ctx context.Context, pubkeyHex string, amount *big.Int) (bool, error) {
	if r.hooks == nil {
		return false, nil
	}
	resp, err := r.hooks.TopUp(ctx, pubkeyHex, amount)
	if err != nil {
		return false, fmt.Errorf("users: top-up webhook for %s: %w", pubkeyHex, err)
	}
	if !resp.Success {
		return false, nil
	}
	if err := r.IncrementBalance(ctx, pubkeyHex, amount); err != nil {
		return false, err
	}
	return true, nil
}
