package db

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestClosureRecordLifecycle(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if rec, err := d.GetClosure(ctx, "acct-1"); err != nil || rec != nil {
		t.Fatalf("expected no record, got %+v err=%v", rec, err)
	}

	if err := d.UpsertClosure(ctx, ClosureRecord{
		AccountID:         "acct-1",
		UserID:            "user-1",
		ACHRelationshipID: "ach-1",
		Status:            ClosurePending,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec, err := d.GetClosure(ctx, "acct-1")
	if err != nil || rec == nil {
		t.Fatalf("get: %+v err=%v", rec, err)
	}
	if rec.Status != ClosurePending || rec.ACHRelationshipID != "ach-1" {
		t.Fatalf("record=%+v", rec)
	}
	if rec.InitiatedAt.IsZero() {
		t.Fatal("initiated_at must default to now")
	}
	if rec.CompletedAt.Valid {
		t.Fatal("completed_at must be unset while pending")
	}

	// Upsert on the same account updates in place; the table keys by account.
	if err := d.UpsertClosure(ctx, ClosureRecord{
		AccountID: "acct-1", UserID: "user-1", ACHRelationshipID: "ach-2",
		Status: ClosurePending,
	}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	rec, _ = d.GetClosure(ctx, "acct-1")
	if rec.ACHRelationshipID != "ach-2" {
		t.Fatalf("ACHRelationshipID=%q after re-upsert", rec.ACHRelationshipID)
	}

	if err := d.UpdateClosureStatus(ctx, "acct-1", ClosureClosed, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	rec, _ = d.GetClosure(ctx, "acct-1")
	if rec.Status != ClosureClosed {
		t.Fatalf("status=%s, expected closed", rec.Status)
	}
	if !rec.CompletedAt.Valid {
		t.Fatal("completed_at must be stamped on close")
	}
}

func TestListClosuresByStatus(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for _, acct := range []string{"acct-1", "acct-2", "acct-3"} {
		if err := d.UpsertClosure(ctx, ClosureRecord{
			AccountID: acct, UserID: "user-1", Status: ClosurePending,
		}); err != nil {
			t.Fatalf("upsert %s: %v", acct, err)
		}
	}
	if err := d.UpdateClosureStatus(ctx, "acct-2", ClosureFailed, "broker error"); err != nil {
		t.Fatalf("fail acct-2: %v", err)
	}

	pending, err := d.ListClosuresByStatus(ctx, ClosurePending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending=%d, expected 2", len(pending))
	}

	failed, err := d.ListClosuresByStatus(ctx, ClosureFailed)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Reason != "broker error" {
		t.Fatalf("failed=%+v", failed)
	}
}

func TestTransferLogRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	amount, _ := decimal.NewFromString("48013.88")
	if err := d.CreateTransferLog(ctx, TransferLog{
		ID:                "row-1",
		AccountID:         "acct-1",
		TransferID:        "tr-1",
		ACHRelationshipID: "ach-1",
		Amount:            amount,
		IsPartial:         true,
		Status:            "QUEUED",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := d.UpdateTransferLogStatus(ctx, "tr-1", "COMPLETE"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	rows, err := d.ListTransfersByAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d, expected 1", len(rows))
	}
	got := rows[0]
	if !got.Amount.Equal(amount) {
		t.Fatalf("amount=%s, expected %s (decimal must survive the round trip)", got.Amount, amount)
	}
	if !got.IsPartial || got.Status != "COMPLETE" {
		t.Fatalf("row=%+v", got)
	}
}
