package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"closure-core/internal/closure"
	"closure-core/internal/events"
	"closure-core/internal/policy"
	"closure-core/pkg/broker/common"
	"closure-core/pkg/broker/sim"
	"closure-core/pkg/db"
	"closure-core/pkg/statestore"
)

func setup(t *testing.T) (*Sweeper, *sim.Broker, *db.Database) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	broker := sim.NewBroker()
	store := statestore.NewSQLStore(database)
	manager := closure.NewManager(broker, store, database, events.NewBus(), policy.Default())

	return New(manager, database, store, nil, time.Minute), broker, database
}

func TestSweepResumesPendingClosures(t *testing.T) {
	sweeper, broker, database := setup(t)
	ctx := context.Background()

	balance, _ := decimal.NewFromString("12000.00")
	broker.AddAccount(common.Account{
		ID: "acct-1", Status: common.AccountActive,
		Cash: balance, CashWithdrawable: balance,
	})
	if err := database.UpsertClosure(ctx, db.ClosureRecord{
		AccountID: "acct-1", UserID: "user-1", ACHRelationshipID: "ach-1",
		Status: db.ClosurePending,
	}); err != nil {
		t.Fatalf("seed closure: %v", err)
	}

	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if broker.TransferCount() != 1 {
		t.Fatalf("transfers=%d, expected the sweep to initiate one withdrawal", broker.TransferCount())
	}
	// The ACH id came from the closure record, not from a caller.
	if broker.TransferCalls[0].ACHRelationshipID != "ach-1" {
		t.Fatalf("transfer ACH=%q", broker.TransferCalls[0].ACHRelationshipID)
	}
}

func TestSweepSkipsAccountsNotReady(t *testing.T) {
	sweeper, broker, database := setup(t)
	ctx := context.Background()

	cash, _ := decimal.NewFromString("9000.00")
	settled, _ := decimal.NewFromString("100.00")
	broker.AddAccount(common.Account{
		ID: "acct-1", Status: common.AccountActive,
		Cash: cash, CashWithdrawable: settled,
	})
	if err := database.UpsertClosure(ctx, db.ClosureRecord{
		AccountID: "acct-1", UserID: "user-1", ACHRelationshipID: "ach-1",
		Status: db.ClosurePending,
	}); err != nil {
		t.Fatalf("seed closure: %v", err)
	}

	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if broker.TransferCount() != 0 {
		t.Fatal("unsettled funds must not be withdrawn")
	}
}
