package events

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"relaycore/core/types"
)

// Sentinel errors surfaced by ValidateIdentity; the pipeline maps these to
// the two "invalid:"-prefixed client reasons.
var (
	ErrIDMismatch    = errors.New("invalid: event id does not match")
	ErrBadSignature  = errors.New("invalid: event signature verification failed")
	ErrMalformedKey  = errors.New("invalid: malformed pubkey")
	ErrMalformedSig  = errors.New("invalid: malformed signature")
)

// ValidateIdentity recomputes the canonical hash and checks it against
// e.ID, then verifies e.Sig against e.PubKey over e.ID. It is pure and
// side-effect free, matching spec.md's determinism invariant.
func ValidateIdentity(e *types.Event) error {
	if CanonicalHash(e) != e.ID {
		return ErrIDMismatch
	}
	pubKey, err := schnorr.ParsePubKey(e.PubKey[:])
	if err != nil {
		return ErrMalformedKey
	}
	sig, err := schnorr.ParseSignature(e.Sig[:])
	if err != nil {
		return ErrMalformedSig
	}
	if !sig.Verify(e.ID[:], pubKey) {
		return ErrBadSignature
	}
	return nil
}
