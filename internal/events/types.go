package events

// Event enumerates high-level topics inside the closure core.
type Event string

const (
	EventClosureInitiated    Event = "closure.initiated"
	EventClosureCompleted    Event = "closure.completed"
	EventClosureFailed       Event = "closure.failed"
	EventWithdrawalInitiated Event = "closure.withdrawal_initiated"
	EventPartialWithdrawal   Event = "closure.partial_withdrawal"
	EventTransferStatus      Event = "transfer.status"
)
