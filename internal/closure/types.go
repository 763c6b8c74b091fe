package closure

import (
	"github.com/shopspring/decimal"

	"closure-core/internal/decision"
	"closure-core/pkg/broker/common"
)

// Resume action labels reported back to the scheduler.
const (
	ActionInitiatedWithdrawal = "initiated_withdrawal"
	ActionContinuedPartial    = "continued_partial_withdrawal"
	ActionWithdrawalFailed    = "withdrawal_failed"
	ActionClosedAccount       = "closed_account"
	ActionCloseFailed         = "close_failed"
	ActionNone                = "none"
)

// ReasonACHRequired is the structured reason returned when a withdrawal is
// due but no ACH relationship is known. The scheduler cannot supply this
// value; a human has to.
const ReasonACHRequired = "ACH relationship ID required"

// InitiateResult reports the outcome of starting a closure. Broker failures
// land in Error with Success=false; they are never raised as Go errors past
// this boundary.
type InitiateResult struct {
	Success        bool
	AccountID      string
	OrdersCanceled int
	Liquidated     bool
	Error          string
}

// WithdrawResult reports one capped withdrawal attempt.
type WithdrawResult struct {
	Success         bool
	TransferID      string
	AmountWithdrawn decimal.Decimal
	RemainingAmount decimal.Decimal
	IsPartial       bool
	Error           string
}

// Status is the transient view combining a fresh account snapshot with the
// decision predicates.
type Status struct {
	AccountID        string
	CurrentStep      decision.Step
	AccountStatus    common.AccountStatus
	OpenOrders       int
	OpenPositions    int
	CashBalance      decimal.Decimal
	CashWithdrawable decimal.Decimal
	ReadyForNext     bool
	CanRetry         bool
	NextAction       string
}

// ResumeResult reports one idempotent resume tick.
type ResumeResult struct {
	Success          bool
	AccountID        string
	Step             decision.Step
	ActionTaken      string
	Reason           string
	CashBalance      decimal.Decimal
	CashWithdrawable decimal.Decimal
	Withdrawal       *WithdrawResult
}
