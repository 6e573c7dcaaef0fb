package config

import (
	"math/big"

	"gopkg.in/yaml.v3"
)

// ContentLimit bounds content length, optionally scoped to a set of kinds.
type ContentLimit struct {
	MaxLength int        `yaml:"maxLength"`
	Kinds     *KindMatch `yaml:"kinds,omitempty"`
}

// KindMatch accepts either bare kind numbers or [lo, hi] inclusive ranges.
type KindMatch struct {
	Exact  []uint16
	Ranges [][2]uint16
}

// UnmarshalYAML accepts a sequence whose entries are either a bare integer
// or a two-element [lo, hi] sequence.
func (k *KindMatch) UnmarshalYAML(value *yaml.Node) error {
	var raw []interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, entry := range raw {
		switch v := entry.(type) {
		case int:
			k.Exact = append(k.Exact, uint16(v))
		case []interface{}:
			if len(v) == 2 {
				lo, loOK := toUint16(v[0])
				hi, hiOK := toUint16(v[1])
				if loOK && hiOK {
					k.Ranges = append(k.Ranges, [2]uint16{lo, hi})
				}
			}
		}
	}
	return nil
}

func toUint16(v interface{}) (uint16, bool) {
	switch n := v.(type) {
	case int:
		return uint16(n), true
	case int64:
		return uint16(n), true
	}
	return 0, false
}

// Matches reports whether kind satisfies the matcher.
func (k *KindMatch) Matches(kind uint16) bool {
	if k == nil {
		return false
	}
	for _, exact := range k.Exact {
		if exact == kind {
			return true
		}
	}
	for _, r := range k.Ranges {
		if kind >= r[0] && kind <= r[1] {
			return true
		}
	}
	return false
}

// CreatedAtLimit bounds how far created_at may drift from the wall clock.
type CreatedAtLimit struct {
	MaxPositiveDelta int64 `yaml:"maxPositiveDelta"`
	MaxNegativeDelta int64 `yaml:"maxNegativeDelta"`
}

// ProofOfWork configures a minimum leading-zero-bit threshold. Zero or
// missing disables the check.
type ProofOfWork struct {
	MinLeadingZeroBits int `yaml:"minLeadingZeroBits"`
}

// PubkeyLimits governs allow/deny lists, minimum balance, and
// proof-of-work difficulty for submitters.
type PubkeyLimits struct {
	MinLeadingZeroBits int      `yaml:"minLeadingZeroBits"`
	Whitelist          []string `yaml:"whitelist"`
	Blacklist          []string `yaml:"blacklist"`
	MinBalance         *big.Int `yaml:"minBalance"`
}

// KindLimits governs allow/deny lists for event kinds.
type KindLimits struct {
	Whitelist *KindMatch `yaml:"whitelist"`
	Blacklist *KindMatch `yaml:"blacklist"`
}

// RateLimitRule describes one sliding-window rule.
type RateLimitRule struct {
	Period int64      `yaml:"period"` // milliseconds
	Rate   int        `yaml:"rate"`
	Kinds  *KindMatch `yaml:"kinds,omitempty"`
}

// Whitelists bypasses rate limiting only, per the rate limiter's contract.
type Whitelists struct {
	Pubkeys     []string `yaml:"pubkeys"`
	IPAddresses []string `yaml:"ipAddresses"`
}

// EventLimits aggregates all per-event admission limits.
type EventLimits struct {
	Content    []ContentLimit  `yaml:"content"`
	CreatedAt  CreatedAtLimit  `yaml:"createdAt"`
	EventID    ProofOfWork     `yaml:"eventId"`
	Pubkey     PubkeyLimits    `yaml:"pubkey"`
	Kind       KindLimits      `yaml:"kind"`
	RateLimits []RateLimitRule `yaml:"rateLimits"`
	Whitelists Whitelists      `yaml:"whitelists"`
}

// Limits is the top-level limits section.
type Limits struct {
	Event EventLimits `yaml:"event"`
}

// FeeSchedule describes a single admission/publication/top-up fee entry.
// Only index 0 of each sequence is consulted; later entries are accepted
// for schema compatibility and otherwise ignored.
type FeeSchedule struct {
	Enabled    bool       `yaml:"enabled"`
	Amount     *big.Int   `yaml:"amount"`
	Whitelists Whitelists `yaml:"whitelists"`
}

// FeeSchedules groups the three fee schedule kinds.
type FeeSchedules struct {
	Admission   []FeeSchedule `yaml:"admission"`
	Publication []FeeSchedule `yaml:"publication"`
	TopUp       []FeeSchedule `yaml:"topUp"`
}

// Payments is the top-level payments section.
type Payments struct {
	Enabled      bool         `yaml:"enabled"`
	FeeSchedules FeeSchedules `yaml:"feeSchedules"`
}

// WebhookEndpoint describes where a webhook call site POSTs.
type WebhookEndpoint struct {
	BaseURL       string `yaml:"baseURL"`
	PubkeyCheck   string `yaml:"pubkeyCheck"`
	EventCheck    string `yaml:"eventCheck"`
	EventCallback string `yaml:"eventCallback"`
	TopUps        string `yaml:"topUps"`
}

// Webhooks is the top-level webhooks section.
type Webhooks struct {
	PubkeyChecks   bool            `yaml:"pubkeyChecks"`
	EventChecks    bool            `yaml:"eventChecks"`
	EventCallbacks bool            `yaml:"eventCallbacks"`
	TopUps         bool            `yaml:"topUps"`
	Endpoints      WebhookEndpoint `yaml:"endpoints"`
}

// Settings is the process-wide configuration snapshot the pipeline reads
// once per admission.
type Settings struct {
	Limits   Limits   `yaml:"limits"`
	Payments Payments `yaml:"payments"`
	Webhooks Webhooks `yaml:"webhooks"`
}

// AdmissionFee returns the admission fee schedule at index 0, if configured.
func (s *Settings) AdmissionFee() (FeeSchedule, bool) {
	if len(s.Payments.FeeSchedules.Admission) == 0 {
		return FeeSchedule{}, false
	}
	return s.Payments.FeeSchedules.Admission[0], true
}

// PublicationFee returns the publication fee schedule at index 0, if configured.
func (s *Settings) PublicationFee() (FeeSchedule, bool) {
	if len(s.Payments.FeeSchedules.Publication) == 0 {
		return FeeSchedule{}, false
	}
	return s.Payments.FeeSchedules.Publication[0], true
}

// TopUpFee returns the top-up fee schedule at index 0, if configured.
func (s *Settings) TopUpFee() (FeeSchedule, bool) {
	if len(s.Payments.FeeSchedules.TopUp) == 0 {
		return FeeSchedule{}, false
	}
	return s.Payments.FeeSchedules.TopUp[0], true
}
