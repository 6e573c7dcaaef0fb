package users

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"relaycore/config"
	"relaycore/webhooks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testWebhookConfig(baseURL string) config.Webhooks {
	return config.Webhooks{
		PubkeyChecks: true,
		TopUps:       true,
		Endpoints: config.WebhookEndpoint{
			BaseURL:     baseURL,
			PubkeyCheck: "/pubkey-check",
			TopUps:      "/top-up",
		},
	}
}

// TestFindByPubkeyCachedBlockSkipsWebhook reproduces "Paid admission,
// cached block": the first lookup for an unknown pubkey invokes the
// pubkey-check webhook, which reports not-admitted and caches the
// block; a second lookup within the cache TTL never calls the webhook
// again.
func TestFindByPubkeyCachedBlockSkipsWebhook(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(webhooks.PubkeyCheckResponse{IsAdmitted: false})
	}))
	defer srv.Close()

	hooks := webhooks.New(testWebhookConfig(srv.URL), "token", nil)
	defer hooks.Close()

	db := newTestDB(t)
	cache := NewCache(newTestRedis(t))
	repo := NewRepository(db, cache, hooks)
	ctx := context.Background()

	u, err := repo.FindByPubkey(ctx, "deadbeef", nil)
	if err != nil {
		t.Fatalf("FindByPubkey: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil user for a not-admitted pubkey")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected webhook called once, got %d", got)
	}

	u, err = repo.FindByPubkey(ctx, "deadbeef", nil)
	if err != nil {
		t.Fatalf("FindByPubkey (cached): %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil user on cached lookup")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected webhook not re-invoked on cache hit, got %d calls", got)
	}
}

func TestFindByPubkeyAdmitsAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(webhooks.PubkeyCheckResponse{IsAdmitted: true, Balance: big.NewInt(50)})
	}))
	defer srv.Close()

	hooks := webhooks.New(testWebhookConfig(srv.URL), "token", nil)
	defer hooks.Close()

	db := newTestDB(t)
	cache := NewCache(newTestRedis(t))
	repo := NewRepository(db, cache, hooks)
	ctx := context.Background()

	u, err := repo.FindByPubkey(ctx, "cafef00d", nil)
	if err != nil {
		t.Fatalf("FindByPubkey: %v", err)
	}
	if u == nil {
		t.Fatalf("expected an admitted user")
	}
	balance, err := u.Balance()
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected balance 50, got %s", balance)
	}

	again, err := repo.FindByPubkey(ctx, "cafef00d", nil)
	if err != nil {
		t.Fatalf("FindByPubkey (from datastore): %v", err)
	}
	if again == nil || !again.IsAdmitted {
		t.Fatalf("expected persisted admitted user on second lookup")
	}
}

func TestGetBalanceStrictUnknownUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, nil, nil)

	_, err := repo.GetBalanceStrict(context.Background(), "unknown")
	if err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetBalanceUnknownUserIsZero(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, nil, nil)

	balance, err := repo.GetBalance(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
}

// TestPublicationFeeWithSuccessfulTopUp reproduces "Publication fee with
// successful top-up": balance 50, a publication fee of 100 is due, the
// top-up webhook succeeds and credits 500, then the publication fee is
// deducted, landing on 450.
func TestPublicationFeeWithSuccessfulTopUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(webhooks.TopUpResponse{Success: true})
	}))
	defer srv.Close()

	hooks := webhooks.New(testWebhookConfig(srv.URL), "token", nil)
	defer hooks.Close()

	db := newTestDB(t)
	repo := NewRepository(db, nil, hooks)
	ctx := context.Background()

	seed := &User{Pubkey: "feedface", IsAdmitted: true, BalanceText: "50"}
	if _, err := repo.Upsert(ctx, seed); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	balance, err := repo.GetBalance(ctx, "feedface")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected seeded balance 50, got %s", balance)
	}

	if balance.Cmp(big.NewInt(100)) < 0 {
		ok, err := repo.TopUpPubkey(ctx, "feedface", big.NewInt(500))
		if err != nil {
			t.Fatalf("TopUpPubkey: %v", err)
		}
		if !ok {
			t.Fatalf("expected top-up to succeed")
		}
	}

	balance, err = repo.GetBalance(ctx, "feedface")
	if err != nil {
		t.Fatalf("GetBalance after top-up: %v", err)
	}
	if balance.Cmp(big.NewInt(550)) != 0 {
		t.Fatalf("expected balance 550 after top-up, got %s", balance)
	}

	if err := repo.DecrementBalance(ctx, "feedface", big.NewInt(100)); err != nil {
		t.Fatalf("DecrementBalance: %v", err)
	}

	balance, err = repo.GetBalance(ctx, "feedface")
	if err != nil {
		t.Fatalf("GetBalance after publication fee: %v", err)
	}
	if balance.Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("expected final balance 450, got %s", balance)
	}
}

func TestIncrementAndDecrementBalance(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, nil, nil)
	ctx := context.Background()

	seed := &User{Pubkey: "aaaa", IsAdmitted: true, BalanceText: "0"}
	if _, err := repo.Upsert(ctx, seed); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	if err := repo.IncrementBalance(ctx, "aaaa", big.NewInt(200)); err != nil {
		t.Fatalf("IncrementBalance: %v", err)
	}
	if err := repo.DecrementBalance(ctx, "aaaa", big.NewInt(75)); err != nil {
		t.Fatalf("DecrementBalance: %v", err)
	}

	balance, err := repo.GetBalance(ctx, "aaaa")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Cmp(big.NewInt(125)) != 0 {
		t.Fatalf("expected balance 125, got %s", balance)
	}
}
