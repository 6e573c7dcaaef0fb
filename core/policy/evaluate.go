// Package policy implements the pure content/identity rule checks the
// admission pipeline runs after rate limiting and before user admission.
package policy

import (
	"fmt"
	"strings"

	"relaycore/config"
	"relaycore/core/types"
)

// Evaluate checks event against settings as observed at now (unix
// seconds). It is a pure function: no I/O, no mutation, and its result
// depends only on its three arguments. An empty string means accepted;
// a non-empty string is the verbatim client-facing rejection reason.
func Evaluate(event *types.Event, settings *config.Settings, now int64) string {
	limits := settings.Limits.Event

	if reason := checkContentLength(event, limits.Content); reason != "" {
		return reason
	}
	if reason := checkCreatedAtSkew(event, limits.CreatedAt, now); reason != "" {
		return reason
	}
	if reason := checkEventIDPoW(event, limits.EventID); reason != "" {
		return reason
	}
	if reason := checkPubkeyPoW(event, limits.Pubkey); reason != "" {
		return reason
	}
	if reason := checkPubkeyLists(event, limits.Pubkey); reason != "" {
		return reason
	}
	if reason := checkKindLists(event, limits.Kind); reason != "" {
		return reason
	}
	return ""
}

func checkContentLength(event *types.Event, records []config.ContentLimit) string {
	length := len(event.Content)
	for _, rec := range records {
		if rec.Kinds != nil && !rec.Kinds.Matches(event.Kind) {
			continue
		}
		if length > rec.MaxLength {
			return fmt.Sprintf("rejected: content is longer than %d bytes", rec.MaxLength)
		}
	}
	return ""
}

func checkCreatedAtSkew(event *types.Event, limit config.CreatedAtLimit, now int64) string {
	if limit.MaxPositiveDelta > 0 && event.CreatedAt > now+limit.MaxPositiveDelta {
		return fmt.Sprintf("rejected: created_at is more than %d seconds in the future", limit.MaxPositiveDelta)
	}
	if limit.MaxNegativeDelta > 0 && event.CreatedAt < now-limit.MaxNegativeDelta {
		return fmt.Sprintf("rejected: created_at is more than %d seconds in the past", limit.MaxNegativeDelta)
	}
	return ""
}

func checkEventIDPoW(event *types.Event, pow config.ProofOfWork) string {
	if pow.MinLeadingZeroBits <= 0 {
		return ""
	}
	got := leadingZeroBits(event.ID[:])
	if got < pow.MinLeadingZeroBits {
		return fmt.Sprintf("pow: difficulty %d<%d", got, pow.MinLeadingZeroBits)
	}
	return ""
}

func checkPubkeyPoW(event *types.Event, pubkey config.PubkeyLimits) string {
	if pubkey.MinLeadingZeroBits <= 0 {
		return ""
	}
	got := leadingZeroBits(event.PubKey[:])
	if got < pubkey.MinLeadingZeroBits {
		return fmt.Sprintf("pow: pubkey difficulty %d<%d", got, pubkey.MinLeadingZeroBits)
	}
	return ""
}

func checkPubkeyLists(event *types.Event, pubkey config.PubkeyLimits) string {
	hex := event.PubKeyHex()
	if len(pubkey.Whitelist) > 0 && !anyPrefixMatch(hex, pubkey.Whitelist) {
		return "blocked: pubkey not allowed"
	}
	if len(pubkey.Blacklist) > 0 && anyPrefixMatch(hex, pubkey.Blacklist) {
		return "blocked: pubkey not allowed"
	}
	return ""
}

func checkKindLists(event *types.Event, kind config.KindLimits) string {
	if kind.Whitelist != nil && !kind.Whitelist.Matches(event.Kind) {
		return fmt.Sprintf("blocked: event kind %d not allowed", event.Kind)
	}
	if kind.Blacklist != nil && kind.Blacklist.Matches(event.Kind) {
		return fmt.Sprintf("blocked: event kind %d not allowed", event.Kind)
	}
	return ""
}

func anyPrefixMatch(hex string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(hex, p) {
			return true
		}
	}
	return false
}

// leadingZeroBits counts leading zero bits across b, read as a
// big-endian unsigned integer.
func leadingZeroBits(b []byte) int {
	count := 0
	for _, by := range b {
		if by == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if by&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}
