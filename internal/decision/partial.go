package decision

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PartialWithdrawal is the persisted record of a withdrawal chain that could
// not complete in a single capped transfer. At most one exists per account;
// its presence is the signal that a withdrawal is already in flight and must
// not be repeated within the cadence window.
type PartialWithdrawal struct {
	AccountID         string          `json:"account_id"`
	TotalRequested    decimal.Decimal `json:"total_requested"`
	AmountWithdrawn   decimal.Decimal `json:"amount_withdrawn"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	TransferID        string          `json:"transfer_id"`
	ACHRelationshipID string          `json:"ach_relationship_id"`
	NextWithdrawalAt  time.Time       `json:"next_withdrawal_at"`
	InitiatedAt       time.Time       `json:"initiated_at"`
}

// PartialKey is the state-store key for an account's partial-withdrawal record.
func PartialKey(accountID string) string {
	return "partial_withdrawal:" + accountID
}

// Encode marshals the record for the state store.
func (p PartialWithdrawal) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePartial unmarshals a state-store value.
func DecodePartial(data []byte) (PartialWithdrawal, error) {
	var p PartialWithdrawal
	err := json.Unmarshal(data, &p)
	return p, err
}
