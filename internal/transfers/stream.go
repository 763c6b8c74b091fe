package transfers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"closure-core/internal/events"
	"closure-core/pkg/broker/common"
	"closure-core/pkg/db"
)

// StatusEvent is one transfer status update from the broker event stream.
type StatusEvent struct {
	AccountID  string    `json:"account_id"`
	TransferID string    `json:"transfer_id"`
	Status     string    `json:"status_to"`
	At         time.Time `json:"at"`
}

// Stream listens to the broker's transfer event feed so the audit log
// reflects settlement progress without polling. The closure flow itself
// never depends on it; the next resume tick re-reads balances regardless.
type Stream struct {
	URL      string
	Header   func() map[string][]string
	DB       *db.Database
	Bus      *events.Bus
	stopChan chan struct{}
}

// NewStream creates a transfer event stream consumer.
func NewStream(url string, database *db.Database, bus *events.Bus) *Stream {
	return &Stream{
		URL:      url,
		DB:       database,
		Bus:      bus,
		stopChan: make(chan struct{}),
	}
}

// Start begins listening. It will log errors but not return them.
func (s *Stream) Start(ctx context.Context) {
	if s.URL == "" {
		log.Println("transfer stream: no URL configured; skipping")
		return
	}

	var header map[string][]string
	if s.Header != nil {
		header = s.Header()
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.URL, header)
	if err != nil {
		log.Printf("transfer stream: ws dial error: %v", err)
		return
	}
	log.Printf("transfer stream started")

	go func() {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			default:
			}
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Printf("transfer stream read error: %v", err)
				return
			}
			s.handleMessage(ctx, msg)
		}
	}()
}

// Stop terminates the reader.
func (s *Stream) Stop() {
	close(s.stopChan)
}

func (s *Stream) handleMessage(ctx context.Context, msg []byte) {
	var ev StatusEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		log.Printf("transfer stream: bad event: %v", err)
		return
	}
	if ev.TransferID == "" {
		return
	}

	if s.DB != nil {
		if err := s.DB.UpdateTransferLogStatus(ctx, ev.TransferID, ev.Status); err != nil {
			log.Printf("transfer stream: update transfer %s: %v", ev.TransferID, err)
		}
	}
	if s.Bus != nil {
		s.Bus.Publish(events.EventTransferStatus, common.Transfer{
			ID:        ev.TransferID,
			AccountID: ev.AccountID,
			Status:    common.TransferStatus(ev.Status),
			CreatedAt: ev.At,
		})
	}
}
