package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus normalizes brokerage account states into a small set.
type AccountStatus string

const (
	AccountActive      AccountStatus = "ACTIVE"
	AccountUpdated     AccountStatus = "ACCOUNT_UPDATED"
	AccountClosed      AccountStatus = "ACCOUNT_CLOSED"
	AccountSuspended   AccountStatus = "SUSPENDED"
	AccountStatusOther AccountStatus = "OTHER"
)

// TransferStatus normalizes ACH transfer states.
type TransferStatus string

const (
	TransferQueued   TransferStatus = "QUEUED"
	TransferPending  TransferStatus = "PENDING"
	TransferComplete TransferStatus = "COMPLETE"
	TransferRejected TransferStatus = "REJECTED"
	TransferCanceled TransferStatus = "CANCELED"
)

// Account is the normalized account view returned by the broker.
// Money fields are decimal because they feed cap and dust comparisons.
type Account struct {
	ID               string
	Status           AccountStatus
	Currency         string
	Cash             decimal.Decimal
	CashWithdrawable decimal.Decimal
	PortfolioValue   decimal.Decimal
	TransfersBlocked bool
}

// Order is an open order as reported by the broker.
type Order struct {
	ID        string
	Symbol    string
	Side      string
	Qty       decimal.Decimal
	Status    string
	CreatedAt time.Time
}

// Position is an open position as reported by the broker.
type Position struct {
	Symbol      string
	Qty         decimal.Decimal
	MarketValue decimal.Decimal
}

// Transfer is the broker's ack for a created or queried ACH transfer.
type Transfer struct {
	ID                string
	AccountID         string
	ACHRelationshipID string
	Amount            decimal.Decimal
	Direction         string // OUTGOING for withdrawals
	Status            TransferStatus
	CreatedAt         time.Time
}

// AccountSnapshot is the ephemeral telemetry the decision logic runs on.
// It is rebuilt from fresh broker reads on every tick and never persisted.
type AccountSnapshot struct {
	AccountID        string
	Status           AccountStatus
	OpenOrders       []Order
	OpenPositions    []Position
	CashBalance      decimal.Decimal
	CashWithdrawable decimal.Decimal
}
