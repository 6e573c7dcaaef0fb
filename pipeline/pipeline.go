// Package pipeline implements the admission pipeline: the fixed,
// ordered sequence of checks a submitted event must clear before it is
// handed to a kind-dispatch strategy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"

	"relaycore/config"
	"relaycore/core/events"
	"relaycore/core/policy"
	"relaycore/core/types"
	"relaycore/emitter"
	"relaycore/fees"
	"relaycore/ratelimit"
	"relaycore/strategy"
	"relaycore/transport"
	"relaycore/users"
	"relaycore/webhooks"
)

var tracer = otel.Tracer("relay/pipeline")

type expirationKey struct{}

// Expiration returns the event's attached future-expiration time, if
// the pipeline found one, for strategies that care about TTL.
func Expiration(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(expirationKey{}).(int64)
	return v, ok
}

// Pipeline wires the collaborators the admission sequence consults.
// Settings are snapshotted once per Handle call, per the hot-reload
// contract: every stage within one admission sees the same snapshot.
type Pipeline struct {
	settings *config.Manager
	limiter  *ratelimit.Limiter
	users    *users.Repository
	hooks    *webhooks.Client
	factory  strategy.Factory
	logger   *slog.Logger
	recorder Recorder
}

// New builds a Pipeline. hooks and recorder may be nil.
func New(settings *config.Manager, limiter *ratelimit.Limiter, repo *users.Repository, hooks *webhooks.Client, factory strategy.Factory, logger *slog.Logger, recorder Recorder) *Pipeline {
	return &Pipeline{
		settings: settings,
		limiter:  limiter,
		users:    repo,
		hooks:    hooks,
		factory:  factory,
		logger:   logger,
		recorder: recorder,
	}
}

// Handle runs one event through the admission sequence. dedupe may be
// nil; when present it is the calling connection's small duplicate-id
// cache. A non-nil error return means no acknowledgement reached the
// client: either the pipeline deliberately emitted none (an event-check
// webhook or datastore/cache transport failure) or sending the
// acknowledgement itself failed. The caller's connection-level error handler
// should decide whether to close or continue, per the pipeline's
// error-handling contract.
func (p *Pipeline) Handle(ctx context.Context, event *types.Event, conn transport.Conn, remoteIP string, dedupe *DedupeCache) error {
	ctx, span := tracer.Start(ctx, "pipeline.Handle")
	defer span.End()

	idHex := event.IDHex()
	if accepted, reason, found := dedupe.Lookup(idHex); found {
		return p.ack(conn, idHex, accepted, reason)
	}

	settings := p.settings.Snapshot()
	now := time.Now().Unix()

	// 1. Structural/cryptographic validity.
	if err := events.ValidateIdentity(event); err != nil {
		reason := err.Error()
		if errors.Is(err, events.ErrMalformedKey) || errors.Is(err, events.ErrMalformedSig) {
			reason = events.ErrBadSignature.Error()
		}
		return p.reject(conn, dedupe, idHex, reason)
	}

	// 2. Expiration.
	if exp, ok := event.Expiration(); ok && exp <= now {
		return p.reject(conn, dedupe, idHex, reasonExpired)
	} else if ok {
		// 3. Expiration metadata attach (future expiration only).
		ctx = context.WithValue(ctx, expirationKey{}, exp)
	}

	// 4. Rate limiting.
	if p.limiter != nil {
		limited, err := p.limiter.Evaluate(ctx, event, settings.Limits.Event.RateLimits, settings.Limits.Event.Whitelists, remoteIP)
		if err != nil {
			return fmt.Errorf("pipeline: rate limiter: %w", err)
		}
		if limited {
			if p.recorder != nil {
				p.recorder.ObserveRateLimited()
			}
			return p.reject(conn, dedupe, idHex, reasonRateLimited)
		}
	}

	// 5. Policy evaluation.
	if reason := policy.Evaluate(event, settings, now); reason != "" {
		return p.reject(conn, dedupe, idHex, reason)
	}

	// 6. User admission & balance gating.
	scheduleResolver := fees.New(settings, p.logger)
	pubkeyHex := event.PubKeyHex()
	admissionFee, admissionApplies := scheduleResolver.AdmissionApplies(pubkeyHex)
	if settings.Payments.Enabled && admissionApplies {
		reason, err := p.gateUserAdmission(ctx, pubkeyHex, admissionFee, scheduleResolver, settings)
		if err != nil {
			return fmt.Errorf("pipeline: user admission: %w", err)
		}
		if reason != "" {
			return p.reject(conn, dedupe, idHex, reason)
		}
	}

	// 7. Event-check webhook.
	if p.hooks != nil && settings.Webhooks.EventChecks {
		resp, err := p.hooks.EventCheck(ctx, event)
		if err != nil {
			if p.recorder != nil {
				p.recorder.ObserveWebhookFailure("eventCheck")
			}
			return fmt.Errorf("pipeline: event-check webhook: %w", err)
		}
		if !resp.Success {
			return p.reject(conn, dedupe, idHex, resp.Reason)
		}
	}

	// 8. Strategy resolution.
	var strat strategy.Strategy
	if p.factory != nil {
		strat = p.factory.For(event, conn)
	}
	if strat == nil {
		return p.reject(conn, dedupe, idHex, reasonNotSupported)
	}

	// 9. Publication fee.
	if publicationFee, ok := scheduleResolver.PublicationApplies(); ok {
		if err := p.users.DecrementBalance(ctx, pubkeyHex, publicationFee.Amount); err != nil {
			return fmt.Errorf("pipeline: publication fee debit: %w", err)
		}
		if p.recorder != nil {
			p.recorder.ObserveFeeCollected("publication", publicationFee.Amount.String())
		}
	}

	// 10. Strategy execution. The strategy owns its own acknowledgement
	// on success; the pipeline must not emit after this point succeeds.
	if err := strat.Execute(ctx, event); err != nil {
		return p.reject(conn, dedupe, idHex, reasonStrategyFailed)
	}
	dedupe.Record(idHex, true, "")
	if p.recorder != nil {
		p.recorder.ObserveOutcome(true, "")
	}

	// 11. Event-callback webhook (fire-and-forget).
	if p.hooks != nil && settings.Webhooks.EventCallbacks {
		p.hooks.EventCallback(event)
	}
	return nil
}

// gateUserAdmission implements stage 6's three branches. It returns a
// non-empty client-visible reason on rejection, or an error for a
// transport failure that must propagate unacknowledged.
func (p *Pipeline) gateUserAdmission(ctx context.Context, pubkeyHex string, admissionFee config.FeeSchedule, resolver *fees.Schedules, settings *config.Settings) (string, error) {
	_ = admissionFee // applicability already established by the caller

	topUpFee, topUpConfigured := resolver.TopUpApplies()
	var topUpAmount *big.Int
	if topUpConfigured {
		topUpAmount = topUpFee.Amount
	}

	user, err := p.users.FindByPubkey(ctx, pubkeyHex, topUpAmount)
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsAdmitted {
		return reasonNotAdmitted, nil
	}

	balance, err := user.Balance()
	if err != nil {
		return "", err
	}

	if publicationFee, ok := resolver.PublicationApplies(); ok {
		if balance.Cmp(publicationFee.Amount) < 0 {
			if !topUpConfigured || !topUpFee.Enabled {
				return reasonInsufficientFunds, nil
			}
			ok, err := p.users.TopUpPubkey(ctx, pubkeyHex, topUpFee.Amount)
			if err != nil {
				return "", err
			}
			if !ok {
				return reasonInsufficientFunds, nil
			}
			balance, err = p.users.GetBalance(ctx, pubkeyHex)
			if err != nil {
				return "", err
			}
		}
	}

	minBalance := settings.Limits.Event.Pubkey.MinBalance
	if minBalance != nil && minBalance.Sign() > 0 && balance.Cmp(minBalance) < 0 {
		return reasonInsufficientFunds, nil
	}

	return "", nil
}

func (p *Pipeline) reject(conn transport.Conn, dedupe *DedupeCache, idHex, reason string) error {
	dedupe.Record(idHex, false, reason)
	if p.recorder != nil {
		p.recorder.ObserveOutcome(false, reason)
	}
	return p.ack(conn, idHex, false, reason)
}

func (p *Pipeline) ack(conn transport.Conn, idHex string, accepted bool, reason string) error {
	if err := emitter.Emit(conn, idHex, accepted, reason); err != nil {
		return fmt.Errorf("pipeline: emit: %w", err)
	}
	return nil
}
