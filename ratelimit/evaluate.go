package ratelimit

import (
	"context"
	"strings"
	"time"

	"relaycore/config"
	"relaycore/core/types"
)

// Bypassed reports whether pubkeyHex or remoteIP appears in the
// configured bypass whitelists. A bypass short-circuits to "not
// limited" without consuming any counter.
func Bypassed(w config.Whitelists, pubkeyHex, remoteIP string) bool {
	for _, p := range w.Pubkeys {
		if strings.EqualFold(p, pubkeyHex) {
			return true
		}
	}
	for _, ip := range w.IPAddresses {
		if ip == remoteIP {
			return true
		}
	}
	return false
}

// Evaluate hits every rate-limit rule applicable to event (by kind) and
// reports limited=true if any of them returned limited. Every
// applicable rule is hit even after one comes back limited, so window
// counters stay consistent for subsequent admissions.
func (l *Limiter) Evaluate(ctx context.Context, event *types.Event, rules []config.RateLimitRule, w config.Whitelists, remoteIP string) (bool, error) {
	pubkeyHex := event.PubKeyHex()
	if Bypassed(w, pubkeyHex, remoteIP) {
		return false, nil
	}

	limited := false
	for _, rule := range rules {
		if rule.Kinds != nil && !rule.Kinds.Matches(event.Kind) {
			continue
		}
		var kinds []uint16
		if rule.Kinds != nil {
			kinds = rule.Kinds.Exact
		}
		key := Key(pubkeyHex, rule.Period, kinds)
		hit, err := l.Hit(ctx, key, 1, Rule{
			Period: time.Duration(rule.Period) * time.Millisecond,
			Rate:   rule.Rate,
		})
		if err != nil {
			return false, err
		}
		if hit {
			limited = true
		}
	}
	return limited, nil
}
