package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"closure-core/pkg/broker/common"
)

// Config holds Broker API credentials.
type Config struct {
	APIKey    string
	APISecret string
	Sandbox   bool
	// RateLimit caps outbound requests per second; 0 uses the default 200/min.
	RateLimit rate.Limit
}

// Client talks to the brokerage Broker API and normalizes responses into
// common types before they reach decision logic.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Broker API client.
func New(cfg Config) *Client {
	base := "https://broker-api.alpaca.markets"
	if cfg.Sandbox {
		base = "https://broker-api.sandbox.alpaca.markets"
	}
	limit := cfg.RateLimit
	if limit == 0 {
		limit = rate.Limit(200.0 / 60.0)
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(limit, 10),
	}
}

// do issues an authenticated request and decodes the JSON response into out
// (out may be nil for calls where only the status matters).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s %s status %d: %s", method, path, res.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

type accountResponse struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Cash             decimal.Decimal `json:"cash"`
	CashWithdrawable decimal.Decimal `json:"cash_withdrawable"`
	PortfolioValue   decimal.Decimal `json:"portfolio_value"`
	TransfersBlocked bool            `json:"transfers_blocked"`
}

// GetAccount fetches the trading account view.
func (c *Client) GetAccount(ctx context.Context, accountID string) (common.Account, error) {
	var out accountResponse
	if err := c.do(ctx, http.MethodGet, "/v1/trading/accounts/"+accountID+"/account", nil, &out); err != nil {
		return common.Account{}, err
	}
	return common.Account{
		ID:               out.ID,
		Status:           normalizeAccountStatus(out.Status),
		Currency:         out.Currency,
		Cash:             out.Cash,
		CashWithdrawable: out.CashWithdrawable,
		PortfolioValue:   out.PortfolioValue,
		TransfersBlocked: out.TransfersBlocked,
	}, nil
}

type orderResponse struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Qty       decimal.Decimal `json:"qty"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// GetOpenOrders lists orders still working at the venue.
func (c *Client) GetOpenOrders(ctx context.Context, accountID string) ([]common.Order, error) {
	var out []orderResponse
	if err := c.do(ctx, http.MethodGet, "/v1/trading/accounts/"+accountID+"/orders?status=open", nil, &out); err != nil {
		return nil, err
	}
	orders := make([]common.Order, 0, len(out))
	for _, o := range out {
		orders = append(orders, common.Order{
			ID:        o.ID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Qty:       o.Qty,
			Status:    o.Status,
			CreatedAt: o.CreatedAt,
		})
	}
	return orders, nil
}

// CancelOrder cancels a single open order.
func (c *Client) CancelOrder(ctx context.Context, accountID, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/trading/accounts/"+accountID+"/orders/"+orderID, nil, nil)
}

type positionResponse struct {
	Symbol      string          `json:"symbol"`
	Qty         decimal.Decimal `json:"qty"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// GetPositions lists open positions.
func (c *Client) GetPositions(ctx context.Context, accountID string) ([]common.Position, error) {
	var out []positionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/trading/accounts/"+accountID+"/positions", nil, &out); err != nil {
		return nil, err
	}
	positions := make([]common.Position, 0, len(out))
	for _, p := range out {
		positions = append(positions, common.Position{
			Symbol:      p.Symbol,
			Qty:         p.Qty,
			MarketValue: p.MarketValue,
		})
	}
	return positions, nil
}

// CloseAllPositions liquidates every open position with market orders.
func (c *Client) CloseAllPositions(ctx context.Context, accountID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/trading/accounts/"+accountID+"/positions?cancel_orders=true", nil, nil)
}

type transferRequest struct {
	TransferType   string `json:"transfer_type"`
	RelationshipID string `json:"relationship_id"`
	Amount         string `json:"amount"`
	Direction      string `json:"direction"`
}

type transferResponse struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	RelationshipID string          `json:"relationship_id"`
	Amount         decimal.Decimal `json:"amount"`
	Direction      string          `json:"direction"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateTransfer initiates an outgoing ACH transfer.
func (c *Client) CreateTransfer(ctx context.Context, accountID, achRelationshipID string, amount decimal.Decimal) (common.Transfer, error) {
	body := transferRequest{
		TransferType:   "ach",
		RelationshipID: achRelationshipID,
		Amount:         amount.StringFixed(2),
		Direction:      "OUTGOING",
	}
	var out transferResponse
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/"+accountID+"/transfers", body, &out); err != nil {
		return common.Transfer{}, err
	}
	return out.normalize(), nil
}

// GetTransferStatus fetches a single transfer by id.
func (c *Client) GetTransferStatus(ctx context.Context, accountID, transferID string) (common.Transfer, error) {
	var out []transferResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID+"/transfers", nil, &out); err != nil {
		return common.Transfer{}, err
	}
	for _, t := range out {
		if t.ID == transferID {
			return t.normalize(), nil
		}
	}
	return common.Transfer{}, fmt.Errorf("transfer %s not found for account %s", transferID, accountID)
}

// CloseAccount requests termination of the account.
func (c *Client) CloseAccount(ctx context.Context, accountID string) error {
	return c.do(ctx, http.MethodPost, "/v1/accounts/"+accountID+"/actions/close", nil, nil)
}

func (t transferResponse) normalize() common.Transfer {
	return common.Transfer{
		ID:                t.ID,
		AccountID:         t.AccountID,
		ACHRelationshipID: t.RelationshipID,
		Amount:            t.Amount,
		Direction:         t.Direction,
		Status:            normalizeTransferStatus(t.Status),
		CreatedAt:         t.CreatedAt,
	}
}

func normalizeAccountStatus(s string) common.AccountStatus {
	switch s {
	case "ACTIVE":
		return common.AccountActive
	case "ACCOUNT_UPDATED":
		return common.AccountUpdated
	case "ACCOUNT_CLOSED":
		return common.AccountClosed
	case "SUSPENDED":
		return common.AccountSuspended
	default:
		return common.AccountStatusOther
	}
}

func normalizeTransferStatus(s string) common.TransferStatus {
	switch s {
	case "QUEUED":
		return common.TransferQueued
	case "PENDING", "APPROVAL_PENDING", "SENT_TO_CLEARING":
		return common.TransferPending
	case "COMPLETE", "COMPLETED", "SETTLED":
		return common.TransferComplete
	case "REJECTED", "RETURNED":
		return common.TransferRejected
	case "CANCELED":
		return common.TransferCanceled
	default:
		return common.TransferPending
	}
}
