package decision

// Step enumerates the phases of an account closure. The progression is not
// strictly linear: PARTIAL_WITHDRAWAL_WAITING is a detour off
// WITHDRAWING_FUNDS taken whenever a requested withdrawal exceeds the daily
// transfer cap.
type Step string

const (
	StepInitiated                Step = "INITIATED"
	StepLiquidatingPositions     Step = "LIQUIDATING_POSITIONS"
	StepWaitingSettlement        Step = "WAITING_SETTLEMENT"
	StepWithdrawingFunds         Step = "WITHDRAWING_FUNDS"
	StepPartialWithdrawalWaiting Step = "PARTIAL_WITHDRAWAL_WAITING"
	StepClosingAccount           Step = "CLOSING_ACCOUNT"
	StepCompleted                Step = "COMPLETED"
	StepFailed                   Step = "FAILED"
)

// Terminal reports whether no further transition can leave the step.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// Recommended actions surfaced to the scheduler.
const (
	ActionContinue = "continue_process"
	ActionWait     = "wait"
	ActionRetry    = "retry"
	ActionNone     = "none"
)
