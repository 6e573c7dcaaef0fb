// Package fees resolves the admission, publication, and top-up fee
// schedules the pipeline consults for balance gating. Only index 0 of
// each configured sequence is ever consulted — a deliberate quirk of
// the pipeline this package preserves rather than "fixes" — so a
// schedule with more than one entry gets a one-time warning log instead
// of silently changing behavior.
package fees

import (
	"log/slog"
	"strings"
	"sync"

	"relaycore/config"
)

// Schedules resolves which fee schedule, if any, applies to a given
// submitter for each of the three fee kinds.
type Schedules struct {
	settings *config.Settings
	logger   *slog.Logger
}

// warnOnce is process-wide so the warning stays one-time even though the
// pipeline builds a new Schedules for every admission.
var warnOnce sync.Map // string -> *sync.Once

// New builds a Schedules resolver over settings.
func New(settings *config.Settings, logger *slog.Logger) *Schedules {
	return &Schedules{settings: settings, logger: logger}
}

// AdmissionApplies returns the admission fee schedule gating pubkeyHex,
// if payments are enabled, the schedule is enabled, and the submitter's
// pubkey does not match one of its whitelist prefixes.
func (s *Schedules) AdmissionApplies(pubkeyHex string) (config.FeeSchedule, bool) {
	if !s.settings.Payments.Enabled {
		return config.FeeSchedule{}, false
	}
	s.warnIfMultiple("admission", len(s.settings.Payments.FeeSchedules.Admission))
	fee, ok := s.settings.AdmissionFee()
	if !ok || !fee.Enabled {
		return config.FeeSchedule{}, false
	}
	if anyPrefixMatch(pubkeyHex, fee.Whitelists.Pubkeys) {
		return config.FeeSchedule{}, false
	}
	return fee, true
}

// PublicationApplies returns the publication fee schedule, if enabled.
func (s *Schedules) PublicationApplies() (config.FeeSchedule, bool) {
	s.warnIfMultiple("publication", len(s.settings.Payments.FeeSchedules.Publication))
	fee, ok := s.settings.PublicationFee()
	if !ok || !fee.Enabled {
		return config.FeeSchedule{}, false
	}
	return fee, true
}

// TopUpApplies returns the top-up fee schedule, if enabled.
func (s *Schedules) TopUpApplies() (config.FeeSchedule, bool) {
	s.warnIfMultiple("topUp", len(s.settings.Payments.FeeSchedules.TopUp))
	fee, ok := s.settings.TopUpFee()
	if !ok || !fee.Enabled {
		return config.FeeSchedule{}, false
	}
	return fee, true
}

func (s *Schedules) warnIfMultiple(name string, count int) {
	if count <= 1 || s.logger == nil {
		return
	}
	onceVal, _ := warnOnce.LoadOrStore(name, &sync.Once{})
	onceVal.(*sync.Once).Do(func() {
		s.logger.Warn("fees: additional schedule entries are configured but unused, only index 0 is consulted",
			"schedule", name, "count", count)
	})
}

func anyPrefixMatch(hex string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(hex, p) {
			return true
		}
	}
	return false
}
