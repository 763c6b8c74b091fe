package closure

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"closure-core/internal/decision"
	"closure-core/internal/events"
	"closure-core/internal/monitor"
	"closure-core/internal/policy"
	"closure-core/pkg/broker/common"
	"closure-core/pkg/db"
	"closure-core/pkg/statestore"
)

// Manager orchestrates the full closure lifecycle: liquidate, wait for
// settlement, withdraw in capped daily transfers, close. Every public
// operation is safe to invoke repeatedly; a resume tick either takes exactly
// one externally visible action or none.
type Manager struct {
	broker common.BrokerService
	store  statestore.Store
	db     *db.Database
	bus    *events.Bus
	engine *decision.Engine
	policy policy.Policy
	now    func() time.Time
}

// NewManager wires the orchestrator. The database is optional (nil skips the
// profile record and transfer audit); broker and store are required.
func NewManager(broker common.BrokerService, store statestore.Store, database *db.Database, bus *events.Bus, pol policy.Policy) *Manager {
	return &Manager{
		broker: broker,
		store:  store,
		db:     database,
		bus:    bus,
		engine: decision.NewEngine(store, pol),
		policy: pol,
		now:    time.Now,
	}
}

// Engine exposes the decision engine, mainly so callers can share one
// instance between orchestration and status endpoints.
func (m *Manager) Engine() *decision.Engine {
	return m.engine
}

// SetClock overrides the time source for the manager and its engine.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
	m.engine.SetClock(now)
}

// InitiateClosure verifies the account is closable, cancels open orders,
// liquidates positions, and persists the pending_closure record. Broker
// failures come back as Success=false with a message, never as an error.
func (m *Manager) InitiateClosure(ctx context.Context, userID, accountID, achRelationshipID string) InitiateResult {
	fail := func(op string, err error) InitiateResult {
		monitor.BrokerErrors.WithLabelValues(op).Inc()
		log.Printf("closure: initiate %s: %s failed: %v", accountID, op, err)
		reason := fmt.Sprintf("%s: %v", op, err)
		// The failed attempt still gets a record so the profile surface can
		// show it; a later successful initiation upserts back to pending.
		if m.db != nil {
			rec := db.ClosureRecord{
				AccountID:         accountID,
				UserID:            userID,
				ACHRelationshipID: achRelationshipID,
				Status:            db.ClosureFailed,
				Reason:            reason,
				InitiatedAt:       m.now().UTC(),
			}
			if uerr := m.db.UpsertClosure(ctx, rec); uerr != nil {
				log.Printf("closure: initiate %s: persist failed record: %v", accountID, uerr)
			}
		}
		if m.bus != nil {
			m.bus.Publish(events.EventClosureFailed, accountID)
		}
		return InitiateResult{AccountID: accountID, Error: reason}
	}

	acct, err := m.broker.GetAccount(ctx, accountID)
	if err != nil {
		return fail("get account", err)
	}
	if acct.Status != common.AccountActive && acct.Status != common.AccountUpdated {
		log.Printf("closure: initiate %s: account not closable (status %s)", accountID, acct.Status)
		return InitiateResult{
			AccountID: accountID,
			Error:     fmt.Sprintf("account status %s is not closable", acct.Status),
		}
	}

	orders, err := m.broker.GetOpenOrders(ctx, accountID)
	if err != nil {
		return fail("list open orders", err)
	}
	for _, o := range orders {
		if err := m.broker.CancelOrder(ctx, accountID, o.ID); err != nil {
			return fail("cancel order "+o.ID, err)
		}
	}

	if err := m.broker.CloseAllPositions(ctx, accountID); err != nil {
		return fail("liquidate positions", err)
	}

	if m.db != nil {
		rec := db.ClosureRecord{
			AccountID:         accountID,
			UserID:            userID,
			ACHRelationshipID: achRelationshipID,
			Status:            db.ClosurePending,
			InitiatedAt:       m.now().UTC(),
		}
		if err := m.db.UpsertClosure(ctx, rec); err != nil {
			log.Printf("closure: initiate %s: persist record: %v", accountID, err)
		}
	}

	monitor.ClosuresInitiated.Inc()
	if m.bus != nil {
		m.bus.Publish(events.EventClosureInitiated, accountID)
	}
	log.Printf("closure: initiated for account %s (orders canceled=%d)", accountID, len(orders))

	return InitiateResult{
		Success:        true,
		AccountID:      accountID,
		OrdersCanceled: len(orders),
		Liquidated:     true,
	}
}

// WithdrawFunds moves at most the daily transfer cap toward the linked bank
// account. When the requested amount exceeds the cap it persists a
// partial-withdrawal record (TTL bounded) so the next tick knows a transfer
// is already in flight.
func (m *Manager) WithdrawFunds(ctx context.Context, accountID, achRelationshipID string, amount decimal.Decimal) WithdrawResult {
	if amount.LessThanOrEqual(decimal.Zero) {
		return WithdrawResult{Error: "withdrawal amount must be positive"}
	}
	if achRelationshipID == "" {
		return WithdrawResult{Error: ReasonACHRequired}
	}

	transferAmount := decimal.Min(amount, m.policy.DailyTransferLimit)

	transfer, err := m.broker.CreateTransfer(ctx, accountID, achRelationshipID, transferAmount)
	if err != nil {
		monitor.BrokerErrors.WithLabelValues("create transfer").Inc()
		log.Printf("closure: withdraw %s: create transfer failed: %v", accountID, err)
		return WithdrawResult{Error: fmt.Sprintf("create transfer: %v", err)}
	}

	if m.db != nil {
		logRow := db.TransferLog{
			ID:                uuid.NewString(),
			AccountID:         accountID,
			TransferID:        transfer.ID,
			ACHRelationshipID: achRelationshipID,
			Amount:            transferAmount,
			IsPartial:         transferAmount.LessThan(amount),
			Status:            string(transfer.Status),
			CreatedAt:         m.now().UTC(),
		}
		if err := m.db.CreateTransferLog(ctx, logRow); err != nil {
			log.Printf("closure: withdraw %s: log transfer: %v", accountID, err)
		}
	}

	if transferAmount.LessThan(amount) {
		remaining := amount.Sub(transferAmount)
		partial := decision.PartialWithdrawal{
			AccountID:         accountID,
			TotalRequested:    amount,
			AmountWithdrawn:   transferAmount,
			RemainingAmount:   remaining,
			TransferID:        transfer.ID,
			ACHRelationshipID: achRelationshipID,
			NextWithdrawalAt:  m.now().Add(m.policy.WithdrawalCadence),
			InitiatedAt:       m.now(),
		}
		data, err := partial.Encode()
		if err != nil {
			log.Printf("closure: withdraw %s: encode partial record: %v", accountID, err)
		} else if err := m.store.Set(ctx, decision.PartialKey(accountID), data, m.policy.PartialTTL); err != nil {
			// The transfer is already out; losing the record degrades the
			// double-withdrawal guard but the cap still bounds the damage.
			log.Printf("closure: withdraw %s: persist partial record: %v", accountID, err)
		}

		monitor.Withdrawals.WithLabelValues("partial").Inc()
		if m.bus != nil {
			m.bus.Publish(events.EventPartialWithdrawal, partial)
		}
		log.Printf("closure: withdraw %s: partial transfer %s for %s, remaining %s",
			accountID, transfer.ID, transferAmount.StringFixed(2), remaining.StringFixed(2))

		return WithdrawResult{
			Success:         true,
			TransferID:      transfer.ID,
			AmountWithdrawn: transferAmount,
			RemainingAmount: remaining,
			IsPartial:       true,
		}
	}

	// Full withdrawal: an older partial record would now be stale.
	if err := m.store.Delete(ctx, decision.PartialKey(accountID)); err != nil {
		log.Printf("closure: withdraw %s: clear partial record: %v", accountID, err)
	}

	monitor.Withdrawals.WithLabelValues("full").Inc()
	if m.bus != nil {
		m.bus.Publish(events.EventWithdrawalInitiated, transfer)
	}
	log.Printf("closure: withdraw %s: transfer %s for %s", accountID, transfer.ID, transferAmount.StringFixed(2))

	return WithdrawResult{
		Success:         true,
		TransferID:      transfer.ID,
		AmountWithdrawn: transferAmount,
		RemainingAmount: decimal.Zero,
	}
}

// GetClosureStatus combines a fresh account snapshot with the decision
// predicates.
func (m *Manager) GetClosureStatus(ctx context.Context, accountID string) (*Status, error) {
	snap, err := common.Snapshot(ctx, m.broker, accountID)
	if err != nil {
		monitor.BrokerErrors.WithLabelValues("snapshot").Inc()
		return nil, fmt.Errorf("account snapshot: %w", err)
	}

	step := m.engine.DetermineStep(ctx, snap)
	ready := m.engine.ReadyForNext(ctx, step, snap)

	return &Status{
		AccountID:        accountID,
		CurrentStep:      step,
		AccountStatus:    snap.Status,
		OpenOrders:       len(snap.OpenOrders),
		OpenPositions:    len(snap.OpenPositions),
		CashBalance:      snap.CashBalance,
		CashWithdrawable: snap.CashWithdrawable,
		ReadyForNext:     ready,
		CanRetry:         step != decision.StepCompleted,
		NextAction:       m.engine.NextAction(step, ready),
	}, nil
}

// ResumeClosureProcess is the idempotent re-entry point invoked on every
// scheduler tick and after any crash. It re-derives the current step from
// fresh telemetry, takes at most one action, and absorbs every broker
// failure into the result so blind external retries stay safe.
func (m *Manager) ResumeClosureProcess(ctx context.Context, accountID, achRelationshipID string) ResumeResult {
	status, err := m.GetClosureStatus(ctx, accountID)
	if err != nil {
		log.Printf("closure: resume %s: %v", accountID, err)
		monitor.ResumeTicks.WithLabelValues(ActionNone).Inc()
		return ResumeResult{
			AccountID:   accountID,
			ActionTaken: ActionNone,
			Reason:      err.Error(),
		}
	}

	res := ResumeResult{
		Success:          true,
		AccountID:        accountID,
		Step:             status.CurrentStep,
		ActionTaken:      ActionNone,
		CashBalance:      status.CashBalance,
		CashWithdrawable: status.CashWithdrawable,
	}

	switch {
	case status.CurrentStep == decision.StepWithdrawingFunds && status.ReadyForNext:
		ach := m.resolveACH(ctx, accountID, achRelationshipID, nil)
		if ach == "" {
			res.Success = false
			res.Reason = ReasonACHRequired
			break
		}
		w := m.WithdrawFunds(ctx, accountID, ach, status.CashBalance)
		res.Withdrawal = &w
		if w.Success {
			res.ActionTaken = ActionInitiatedWithdrawal
		} else {
			res.Success = false
			res.ActionTaken = ActionWithdrawalFailed
			res.Reason = w.Error
		}

	case status.CurrentStep == decision.StepPartialWithdrawalWaiting && status.ReadyForNext:
		partial, perr := m.engine.Partial(ctx, accountID)
		if perr != nil || partial == nil {
			// Record expired or store degraded; fall back to withdrawing
			// whatever the account still holds.
			partial = &decision.PartialWithdrawal{RemainingAmount: status.CashBalance}
		}
		ach := m.resolveACH(ctx, accountID, achRelationshipID, partial)
		if ach == "" {
			res.Success = false
			res.Reason = ReasonACHRequired
			break
		}
		w := m.WithdrawFunds(ctx, accountID, ach, partial.RemainingAmount)
		res.Withdrawal = &w
		if w.Success {
			res.ActionTaken = ActionContinuedPartial
		} else {
			res.Success = false
			res.ActionTaken = ActionWithdrawalFailed
			res.Reason = w.Error
		}

	case status.CurrentStep == decision.StepClosingAccount && status.ReadyForNext:
		if err := m.broker.CloseAccount(ctx, accountID); err != nil {
			monitor.BrokerErrors.WithLabelValues("close account").Inc()
			log.Printf("closure: resume %s: close account failed: %v", accountID, err)
			res.Success = false
			res.ActionTaken = ActionCloseFailed
			res.Reason = fmt.Sprintf("close account: %v", err)
			// Record the reason but stay pending: the failure is transient
			// from here and the next sweep retries it.
			if m.db != nil {
				if derr := m.db.UpdateClosureStatus(ctx, accountID, db.ClosurePending, res.Reason); derr != nil {
					log.Printf("closure: resume %s: record close failure: %v", accountID, derr)
				}
			}
			if m.bus != nil {
				m.bus.Publish(events.EventClosureFailed, accountID)
			}
			break
		}
		res.ActionTaken = ActionClosedAccount
		res.Step = decision.StepCompleted
		if m.db != nil {
			if err := m.db.UpdateClosureStatus(ctx, accountID, db.ClosureClosed, ""); err != nil {
				log.Printf("closure: resume %s: mark closed: %v", accountID, err)
			}
		}
		if m.bus != nil {
			m.bus.Publish(events.EventClosureCompleted, accountID)
		}
		log.Printf("closure: account %s closed", accountID)

	default:
		// Liquidating, settling, inside the cadence window, or terminal:
		// nothing to do this tick.
	}

	monitor.ResumeTicks.WithLabelValues(res.ActionTaken).Inc()
	return res
}

// resolveACH picks the ACH relationship id from, in order: the explicit
// argument, the persisted partial record, the closure record.
func (m *Manager) resolveACH(ctx context.Context, accountID, explicit string, partial *decision.PartialWithdrawal) string {
	if explicit != "" {
		return explicit
	}
	if partial != nil && partial.ACHRelationshipID != "" {
		return partial.ACHRelationshipID
	}
	if m.db != nil {
		rec, err := m.db.GetClosure(ctx, accountID)
		if err != nil {
			log.Printf("closure: resolve ach for %s: %v", accountID, err)
		} else if rec != nil {
			return rec.ACHRelationshipID
		}
	}
	return ""
}
