package common

import (
	"context"

	"github.com/shopspring/decimal"
)

// BrokerService abstracts the brokerage account/position/order/transfer
// primitives the closure flow depends on.
type BrokerService interface {
	GetAccount(ctx context.Context, accountID string) (Account, error)
	GetOpenOrders(ctx context.Context, accountID string) ([]Order, error)
	CancelOrder(ctx context.Context, accountID, orderID string) error
	GetPositions(ctx context.Context, accountID string) ([]Position, error)
	CloseAllPositions(ctx context.Context, accountID string) error
	CreateTransfer(ctx context.Context, accountID, achRelationshipID string, amount decimal.Decimal) (Transfer, error)
	GetTransferStatus(ctx context.Context, accountID, transferID string) (Transfer, error)
	CloseAccount(ctx context.Context, accountID string) error
}

// Snapshot assembles a fresh AccountSnapshot from the individual broker reads.
func Snapshot(ctx context.Context, b BrokerService, accountID string) (AccountSnapshot, error) {
	acct, err := b.GetAccount(ctx, accountID)
	if err != nil {
		return AccountSnapshot{}, err
	}
	orders, err := b.GetOpenOrders(ctx, accountID)
	if err != nil {
		return AccountSnapshot{}, err
	}
	positions, err := b.GetPositions(ctx, accountID)
	if err != nil {
		return AccountSnapshot{}, err
	}
	return AccountSnapshot{
		AccountID:        accountID,
		Status:           acct.Status,
		OpenOrders:       orders,
		OpenPositions:    positions,
		CashBalance:      acct.Cash,
		CashWithdrawable: acct.CashWithdrawable,
	}, nil
}
