package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
limits:
  event:
    createdAt:
      maxPositiveDelta: 900
      maxNegativeDelta: 86400
    rateLimits:
      - period: 60000
        rate: 5
payments:
  enabled: true
  feeSchedules:
    admission:
      - enabled: true
        amount: 1000
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp settings: %v", err)
	}
	return path
}

func TestLoadParsesRateLimitsAndFees(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Limits.Event.RateLimits) != 1 {
		t.Fatalf("expected 1 rate limit rule, got %d", len(s.Limits.Event.RateLimits))
	}
	if s.Limits.Event.RateLimits[0].Rate != 5 {
		t.Fatalf("expected rate 5, got %d", s.Limits.Event.RateLimits[0].Rate)
	}
	fee, ok := s.AdmissionFee()
	if !ok || !fee.Enabled {
		t.Fatalf("expected admission fee schedule present and enabled")
	}
	if fee.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected admission fee amount 1000, got %s", fee.Amount.String())
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error loading a missing file")
	}
}

func TestValidateRejectsNonPositiveRateLimit(t *testing.T) {
	s := &Settings{}
	s.Limits.Event.RateLimits = []RateLimitRule{{Period: 0, Rate: 5}}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected validation error for zero period")
	}
}

func TestValidateRejectsWebhookEnabledWithoutEndpoint(t *testing.T) {
	s := &Settings{}
	s.Webhooks.EventChecks = true
	if err := s.Validate(); err == nil {
		t.Fatalf("expected validation error for missing event-check endpoint")
	}
}

func TestManagerInitialSnapshotThenLoadOfRewrittenFile(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	first := m.Snapshot()
	if first.Limits.Event.RateLimits[0].Rate != 5 {
		t.Fatalf("expected initial rate 5")
	}

	updated := `
limits:
  event:
    rateLimits:
      - period: 60000
        rate: 9
`
	// Advance the mtime past the original write, as a rewrite on disk
	// would; the rewritten file is then parsed with Load directly.
	future := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite settings: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load updated: %v", err)
	}
	if reloaded.Limits.Event.RateLimits[0].Rate != 9 {
		t.Fatalf("expected reloaded rate 9, got %d", reloaded.Limits.Event.RateLimits[0].Rate)
	}
}
