// Package sim provides an in-memory BrokerService for dry-run wiring and
// tests. Transfers settle instantly so multi-day flows can be exercised in
// milliseconds with an injected clock.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"closure-core/pkg/broker/common"
)

// Broker is a scriptable, thread-safe in-memory brokerage.
type Broker struct {
	mu        sync.Mutex
	accounts  map[string]*common.Account
	orders    map[string][]common.Order
	positions map[string][]common.Position
	transfers map[string]common.Transfer

	// failures maps an operation name to the error the next call returns.
	// Operation names: get_account, get_orders, cancel_order, get_positions,
	// close_positions, create_transfer, get_transfer, close_account.
	failures map[string]error

	// TransferCalls records every CreateTransfer invocation in order.
	TransferCalls []common.Transfer
}

// NewBroker creates an empty simulated brokerage.
func NewBroker() *Broker {
	return &Broker{
		accounts:  make(map[string]*common.Account),
		orders:    make(map[string][]common.Order),
		positions: make(map[string][]common.Position),
		transfers: make(map[string]common.Transfer),
		failures:  make(map[string]error),
	}
}

// AddAccount registers an account.
func (b *Broker) AddAccount(acct common.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := acct
	b.accounts[acct.ID] = &a
}

// SetBalances adjusts an account's cash and withdrawable cash.
func (b *Broker) SetBalances(accountID string, cash, withdrawable decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[accountID]; ok {
		a.Cash = cash
		a.CashWithdrawable = withdrawable
	}
}

// SetOrders replaces the open orders for an account.
func (b *Broker) SetOrders(accountID string, orders []common.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[accountID] = orders
}

// SetPositions replaces the open positions for an account.
func (b *Broker) SetPositions(accountID string, positions []common.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[accountID] = positions
}

// FailNext makes the next call to op return err.
func (b *Broker) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

func (b *Broker) takeFailure(op string) error {
	if err, ok := b.failures[op]; ok {
		delete(b.failures, op)
		return err
	}
	return nil
}

// GetAccount returns the account view.
func (b *Broker) GetAccount(_ context.Context, accountID string) (common.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("get_account"); err != nil {
		return common.Account{}, err
	}
	a, ok := b.accounts[accountID]
	if !ok {
		return common.Account{}, fmt.Errorf("sim: unknown account %s", accountID)
	}
	return *a, nil
}

// GetOpenOrders lists open orders.
func (b *Broker) GetOpenOrders(_ context.Context, accountID string) ([]common.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("get_orders"); err != nil {
		return nil, err
	}
	return append([]common.Order(nil), b.orders[accountID]...), nil
}

// CancelOrder removes an open order.
func (b *Broker) CancelOrder(_ context.Context, accountID, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("cancel_order"); err != nil {
		return err
	}
	orders := b.orders[accountID]
	for i, o := range orders {
		if o.ID == orderID {
			b.orders[accountID] = append(orders[:i], orders[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("sim: order %s not found", orderID)
}

// GetPositions lists open positions.
func (b *Broker) GetPositions(_ context.Context, accountID string) ([]common.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("get_positions"); err != nil {
		return nil, err
	}
	return append([]common.Position(nil), b.positions[accountID]...), nil
}

// CloseAllPositions liquidates everything, converting market value to cash
// pending settlement (withdrawable lags until SettleAll is called).
func (b *Broker) CloseAllPositions(_ context.Context, accountID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("close_positions"); err != nil {
		return err
	}
	a, ok := b.accounts[accountID]
	if !ok {
		return fmt.Errorf("sim: unknown account %s", accountID)
	}
	for _, p := range b.positions[accountID] {
		a.Cash = a.Cash.Add(p.MarketValue)
	}
	b.positions[accountID] = nil
	b.orders[accountID] = nil
	return nil
}

// SettleAll makes the whole cash balance withdrawable, simulating settlement.
func (b *Broker) SettleAll(accountID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[accountID]; ok {
		a.CashWithdrawable = a.Cash
	}
}

// CreateTransfer moves cash out instantly.
func (b *Broker) CreateTransfer(_ context.Context, accountID, achRelationshipID string, amount decimal.Decimal) (common.Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("create_transfer"); err != nil {
		return common.Transfer{}, err
	}
	a, ok := b.accounts[accountID]
	if !ok {
		return common.Transfer{}, fmt.Errorf("sim: unknown account %s", accountID)
	}
	if amount.GreaterThan(a.CashWithdrawable) {
		return common.Transfer{}, fmt.Errorf("sim: insufficient withdrawable cash: %s > %s",
			amount.StringFixed(2), a.CashWithdrawable.StringFixed(2))
	}

	t := common.Transfer{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		ACHRelationshipID: achRelationshipID,
		Amount:            amount,
		Direction:         "OUTGOING",
		Status:            common.TransferQueued,
		CreatedAt:         time.Now(),
	}
	a.Cash = a.Cash.Sub(amount)
	a.CashWithdrawable = a.CashWithdrawable.Sub(amount)
	b.transfers[t.ID] = t
	b.TransferCalls = append(b.TransferCalls, t)
	return t, nil
}

// GetTransferStatus returns a previously created transfer.
func (b *Broker) GetTransferStatus(_ context.Context, accountID, transferID string) (common.Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("get_transfer"); err != nil {
		return common.Transfer{}, err
	}
	t, ok := b.transfers[transferID]
	if !ok || t.AccountID != accountID {
		return common.Transfer{}, fmt.Errorf("sim: transfer %s not found", transferID)
	}
	return t, nil
}

// CloseAccount marks the account closed.
func (b *Broker) CloseAccount(_ context.Context, accountID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure("close_account"); err != nil {
		return err
	}
	a, ok := b.accounts[accountID]
	if !ok {
		return fmt.Errorf("sim: unknown account %s", accountID)
	}
	a.Status = common.AccountClosed
	return nil
}

// TransferCount reports how many transfers were created.
func (b *Broker) TransferCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.TransferCalls)
}
