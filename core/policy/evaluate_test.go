package policy

import (
	"testing"

	"relaycore/config"
	"relaycore/core/types"
)

func newEvent(kind uint16, content string, createdAt int64) *types.Event {
	return &types.Event{
		Kind:      kind,
		Content:   content,
		CreatedAt: createdAt,
	}
}

func TestEvaluateContentTooLongKindScoped(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.Content = []config.ContentLimit{
		{MaxLength: 200, Kinds: &config.KindMatch{Exact: []uint16{1}}},
	}
	longContent := make([]byte, 300)
	for i := range longContent {
		longContent[i] = 'a'
	}

	e := newEvent(1, string(longContent), 1_700_000_000)
	if reason := Evaluate(e, settings, 1_700_000_000); reason != "rejected: content is longer than 200 bytes" {
		t.Fatalf("expected content-length rejection, got %q", reason)
	}

	e2 := newEvent(2, string(longContent), 1_700_000_000)
	if reason := Evaluate(e2, settings, 1_700_000_000); reason != "" {
		t.Fatalf("expected acceptance for unscoped kind, got %q", reason)
	}
}

func TestEvaluateFutureSkew(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.CreatedAt.MaxPositiveDelta = 600
	e := newEvent(1, "", 1_700_000_900)
	reason := Evaluate(e, settings, 1_700_000_000)
	if reason != "rejected: created_at is more than 600 seconds in the future" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluatePastSkew(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.CreatedAt.MaxNegativeDelta = 600
	e := newEvent(1, "", 1_699_999_000)
	reason := Evaluate(e, settings, 1_700_000_000)
	if reason != "rejected: created_at is more than 600 seconds in the past" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateEventIDProofOfWork(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.EventID.MinLeadingZeroBits = 16
	e := newEvent(1, "", 1_700_000_000)
	// A zero first byte (8 bits) followed by 0x0F (4 more) gives 12
	// leading zero bits in total.
	e.ID[1] = 0x0F
	reason := Evaluate(e, settings, 1_700_000_000)
	if reason != "pow: difficulty 12<16" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluatePubkeyAllowlist(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.Pubkey.Whitelist = []string{"ab"}
	e := newEvent(1, "", 1_700_000_000)
	e.PubKey[0] = 0xCD
	reason := Evaluate(e, settings, 1_700_000_000)
	if reason != "blocked: pubkey not allowed" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateKindDenylist(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.Kind.Blacklist = &config.KindMatch{Ranges: [][2]uint16{{100, 200}}}
	e := newEvent(150, "", 1_700_000_000)
	reason := Evaluate(e, settings, 1_700_000_000)
	if reason != "blocked: event kind 150 not allowed" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateAcceptsCleanEvent(t *testing.T) {
	settings := &config.Settings{}
	e := newEvent(1, "hello", 1_700_000_000)
	if reason := Evaluate(e, settings, 1_700_000_000); reason != "" {
		t.Fatalf("expected acceptance, got %q", reason)
	}
}
