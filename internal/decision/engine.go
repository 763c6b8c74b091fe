package decision

import (
	"context"
	"log"
	"time"

	"closure-core/internal/policy"
	"closure-core/pkg/broker/common"
	"closure-core/pkg/statestore"
)

// Engine is the pure decision half of the closure flow: given fresh account
// telemetry plus any persisted partial-withdrawal state, it derives the
// current step, readiness to advance, and the recommended action. It never
// calls the broker and never mutates anything except a finished
// partial-withdrawal record.
type Engine struct {
	store  statestore.Store
	policy policy.Policy
	now    func() time.Time
}

// NewEngine creates a decision engine over the given state store and policy.
func NewEngine(store statestore.Store, pol policy.Policy) *Engine {
	return &Engine{store: store, policy: pol, now: time.Now}
}

// SetClock overrides the time source; tests use it to cross the cadence
// window without sleeping.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Partial returns the persisted partial-withdrawal record for an account, or
// nil when none exists. A store failure is returned so callers can choose
// the degraded path explicitly.
func (e *Engine) Partial(ctx context.Context, accountID string) (*PartialWithdrawal, error) {
	data, ok, err := e.store.Get(ctx, PartialKey(accountID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	p, err := DecodePartial(data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DetermineStep classifies the account into its current closure step.
//
// After the terminal-status check, the partial-withdrawal override applies
// before any balance rule: while a record exists and the
// balance has not reached the dust threshold, the account is waiting on the
// cadence window regardless of what the balance alone would suggest. Skipping
// that override is exactly the double-withdrawal bug this engine exists to
// prevent.
func (e *Engine) DetermineStep(ctx context.Context, snap common.AccountSnapshot) Step {
	// Terminal account statuses short-circuit everything else: a closed
	// account must never be asked to close again, and a suspended one cannot
	// progress until the broker lifts the hold.
	switch snap.Status {
	case common.AccountClosed:
		return StepCompleted
	case common.AccountSuspended:
		return StepFailed
	}

	dust := e.policy.DustThreshold

	partial, err := e.Partial(ctx, snap.AccountID)
	if err != nil {
		// Degrade to balance-only classification rather than blocking the
		// whole closure on a store outage. The withdraw call itself is still
		// capped, so the worst case is one redundant bounded transfer.
		log.Printf("decision: state store unavailable for %s: %v (balance-only classification)", snap.AccountID, err)
	} else if partial != nil {
		if snap.CashBalance.GreaterThan(dust) {
			return StepPartialWithdrawalWaiting
		}
		// Withdrawal chain reached dust: the record has served its purpose
		// and must not linger to block the closing step.
		if err := e.store.Delete(ctx, PartialKey(snap.AccountID)); err != nil {
			log.Printf("decision: delete partial record for %s: %v", snap.AccountID, err)
		}
	}

	if len(snap.OpenOrders) > 0 || len(snap.OpenPositions) > 0 {
		return StepLiquidatingPositions
	}

	if snap.CashBalance.GreaterThan(dust) {
		switch {
		case snap.CashWithdrawable.GreaterThan(snap.CashBalance):
			// Inconsistent broker read; wait for a sane snapshot.
			return StepWaitingSettlement
		case snap.CashWithdrawable.LessThan(snap.CashBalance):
			return StepWaitingSettlement
		default:
			return StepWithdrawingFunds
		}
	}

	return StepClosingAccount
}

// ReadyForNext reports whether the step can act on this tick.
//
// For WITHDRAWING_FUNDS, readiness means "an action can be taken": settled
// funds are ready to withdraw right now. Treating a remaining balance as
// "keep waiting" is the historical defect that stranded settled funds
// indefinitely.
func (e *Engine) ReadyForNext(ctx context.Context, step Step, snap common.AccountSnapshot) bool {
	dust := e.policy.DustThreshold

	switch step {
	case StepLiquidatingPositions:
		return len(snap.OpenOrders) == 0 && len(snap.OpenPositions) == 0

	case StepWaitingSettlement:
		return false

	case StepWithdrawingFunds:
		return snap.CashBalance.GreaterThan(dust) &&
			snap.CashWithdrawable.Equal(snap.CashBalance)

	case StepPartialWithdrawalWaiting:
		if snap.CashBalance.LessThanOrEqual(dust) {
			// Withdrawal chain complete; drop the record so a stale key
			// cannot block the closing step.
			if err := e.store.Delete(ctx, PartialKey(snap.AccountID)); err != nil {
				log.Printf("decision: delete partial record for %s: %v", snap.AccountID, err)
			}
			return true
		}
		partial, err := e.Partial(ctx, snap.AccountID)
		if err != nil {
			// Store unreachable: fall back to the non-partial readiness rule.
			log.Printf("decision: state store unavailable for %s: %v (cadence check skipped)", snap.AccountID, err)
			return snap.CashBalance.GreaterThan(dust) &&
				snap.CashWithdrawable.Equal(snap.CashBalance)
		}
		if partial == nil {
			// Record expired or already cleared; nothing blocks the next move.
			return true
		}
		return e.now().Sub(partial.InitiatedAt) >= e.policy.WithdrawalCadence

	case StepClosingAccount:
		return snap.CashBalance.LessThanOrEqual(dust)

	default:
		// INITIATED resolves to a concrete step on the next classification;
		// COMPLETED and FAILED are terminal.
		return false
	}
}

// NextAction deterministically maps a step/readiness pair to the action the
// scheduler should take.
func (e *Engine) NextAction(step Step, ready bool) string {
	switch {
	case step == StepCompleted:
		return ActionNone
	case step == StepFailed:
		return ActionRetry
	case ready:
		return ActionContinue
	default:
		return ActionWait
	}
}
