package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"closure-core/pkg/broker/common"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{APIKey: "key", APISecret: "secret"})
	c.baseURL = srv.URL
	return c
}

func TestGetAccountNormalizesStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/trading/accounts/acct-1/account" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":                "acct-1",
			"status":            "ACCOUNT_UPDATED",
			"currency":          "USD",
			"cash":              "1523.77",
			"cash_withdrawable": "1500.00",
			"portfolio_value":   "1523.77",
		})
	})

	acct, err := c.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.Status != common.AccountUpdated {
		t.Errorf("status = %s, want %s", acct.Status, common.AccountUpdated)
	}
	if !acct.Cash.Equal(decimal.RequireFromString("1523.77")) {
		t.Errorf("cash = %s", acct.Cash)
	}
	if !acct.CashWithdrawable.Equal(decimal.RequireFromString("1500.00")) {
		t.Errorf("cash_withdrawable = %s", acct.CashWithdrawable)
	}
}

func TestCreateTransferSendsFixedPointAmount(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/accounts/acct-1/transfers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != "50000.00" {
			t.Errorf("amount = %q, want %q", req.Amount, "50000.00")
		}
		if req.Direction != "OUTGOING" || req.TransferType != "ach" {
			t.Errorf("unexpected request body %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":              "tr-1",
			"account_id":      "acct-1",
			"relationship_id": req.RelationshipID,
			"amount":          "50000.00",
			"direction":       "OUTGOING",
			"status":          "QUEUED",
		})
	})

	tr, err := c.CreateTransfer(context.Background(), "acct-1", "ach-1", decimal.NewFromInt(50000))
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if tr.Status != common.TransferQueued {
		t.Errorf("status = %s, want %s", tr.Status, common.TransferQueued)
	}
	if tr.ACHRelationshipID != "ach-1" {
		t.Errorf("relationship = %s", tr.ACHRelationshipID)
	}
}

func TestDoReturnsAPIErrorBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"insufficient withdrawable balance"}`))
	})

	_, err := c.CreateTransfer(context.Background(), "acct-1", "ach-1", decimal.NewFromInt(100))
	if err == nil {
		t.Fatal("expected error")
	}
	want := "status 422"
	if got := err.Error(); !strings.Contains(got, want) {
		t.Errorf("error %q does not mention %q", got, want)
	}
}

func TestNormalizeTransferStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want common.TransferStatus
	}{
		{"QUEUED", common.TransferQueued},
		{"SENT_TO_CLEARING", common.TransferPending},
		{"SETTLED", common.TransferComplete},
		{"RETURNED", common.TransferRejected},
		{"CANCELED", common.TransferCanceled},
		{"SOMETHING_NEW", common.TransferPending},
	}
	for _, tc := range cases {
		if got := normalizeTransferStatus(tc.raw); got != tc.want {
			t.Errorf("normalizeTransferStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}
