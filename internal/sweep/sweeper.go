// Package sweep drives pending closures forward. The generic job scheduler
// and leader election live outside this service; the sweeper is only the
// service-local tick that re-enters each pending closure through the
// idempotent resume operation.
package sweep

import (
	"context"
	"log"
	"sync"
	"time"

	"closure-core/internal/closure"
	"closure-core/internal/monitor"
	"closure-core/pkg/db"
	"closure-core/pkg/statestore"
)

// Leader gates sweeping across redundant replicas. Election itself is
// external; the default single-node gate always holds leadership.
type Leader interface {
	IsLeader() bool
}

// SingleNode is the default Leader for non-replicated deployments.
type SingleNode struct{}

func (SingleNode) IsLeader() bool { return true }

// Sweeper periodically resumes every pending closure.
type Sweeper struct {
	manager  *closure.Manager
	database *db.Database
	store    *statestore.SQLStore
	leader   Leader
	interval time.Duration
	mu       sync.Mutex
}

// New creates a sweeper. A nil leader defaults to SingleNode; a nil store
// skips expired-key cleanup.
func New(manager *closure.Manager, database *db.Database, store *statestore.SQLStore, leader Leader, interval time.Duration) *Sweeper {
	if leader == nil {
		leader = SingleNode{}
	}
	return &Sweeper{
		manager:  manager,
		database: database,
		store:    store,
		leader:   leader,
		interval: interval,
	}
}

// Start begins periodic sweeping until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.leader.IsLeader() {
					continue
				}
				if err := s.Sweep(ctx); err != nil {
					log.Printf("sweep: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("sweep: started (interval: %v)", s.interval)
}

// Sweep resumes each pending closure once. Individual resume outcomes are
// reported through logs and metrics; only listing failures abort the pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.database.ListClosuresByStatus(ctx, db.ClosurePending)
	if err != nil {
		return err
	}
	monitor.PendingClosures.Set(float64(len(pending)))

	for _, rec := range pending {
		res := s.manager.ResumeClosureProcess(ctx, rec.AccountID, rec.ACHRelationshipID)
		if res.ActionTaken != closure.ActionNone || !res.Success {
			log.Printf("sweep: account %s step=%s action=%s success=%v reason=%q",
				rec.AccountID, res.Step, res.ActionTaken, res.Success, res.Reason)
		}
	}

	if s.store != nil {
		if removed, err := s.store.Cleanup(ctx); err != nil {
			log.Printf("sweep: state cleanup: %v", err)
		} else if removed > 0 {
			log.Printf("sweep: cleared %d expired state keys", removed)
		}
	}

	return nil
}
