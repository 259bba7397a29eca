package scheduler

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	accountrepo "leadpulse-backend/internal/account/repository"
	"leadpulse-backend/internal/sync/usecase"
	"leadpulse-backend/pkg/config"
)

// Scheduler runs periodic background syncs, one loop per tenant. Two guards
// apply at tick time: a tenant already being synced is skipped (no queue, no
// overlap), and a global cap bounds how many tenants sync at once.
type Scheduler struct {
	orgRepo     accountrepo.OrgRepository
	accountRepo accountrepo.AccountRepository
	syncUC      usecase.SyncUsecase
	cfg         *config.Config

	mu       sync.Mutex
	inFlight map[string]bool
	running  int
	stopChs  map[string]chan struct{}

	wg sync.WaitGroup
}

func NewScheduler(
	orgRepo accountrepo.OrgRepository,
	accountRepo accountrepo.AccountRepository,
	syncUC usecase.SyncUsecase,
	cfg *config.Config,
) *Scheduler {
	return &Scheduler{
		orgRepo:     orgRepo,
		accountRepo: accountRepo,
		syncUC:      syncUC,
		cfg:         cfg,
		inFlight:    make(map[string]bool),
		stopChs:     make(map[string]chan struct{}),
	}
}

// Start launches a sync loop for every known org.
func (s *Scheduler) Start() error {
	orgs, err := s.orgRepo.FindAll()
	if err != nil {
		return err
	}
	for _, org := range orgs {
		s.StartTenant(org.ID)
	}
	log.Printf("[Scheduler] Started sync loops for %d orgs (interval %s, cap %d)",
		len(orgs), s.cfg.SyncInterval, s.cfg.MaxConcurrentSyncs)
	return nil
}

// StartTenant begins (or restarts) the periodic loop for one org. Each loop
// sleeps a random initial jitter so tenants don't tick in lockstep after a
// process restart.
func (s *Scheduler) StartTenant(orgID string) {
	s.mu.Lock()
	if old, ok := s.stopChs[orgID]; ok {
		close(old)
	}
	stopCh := make(chan struct{})
	s.stopChs[orgID] = stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(orgID, stopCh)
}

// StopTenant halts the loop for one org. An in-progress sync finishes.
func (s *Scheduler) StopTenant(orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stopCh, ok := s.stopChs[orgID]; ok {
		close(stopCh)
		delete(s.stopChs, orgID)
	}
}

// Stop halts every loop and waits for in-progress syncs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for orgID, stopCh := range s.stopChs {
		close(stopCh)
		delete(s.stopChs, orgID)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) runLoop(orgID string, stopCh chan struct{}) {
	defer s.wg.Done()

	jitter := time.Duration(0)
	if s.cfg.SyncJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(s.cfg.SyncJitter)))
	}
	select {
	case <-time.After(jitter):
	case <-stopCh:
		return
	}

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	s.Tick(orgID)
	for {
		select {
		case <-ticker.C:
			s.Tick(orgID)
		case <-stopCh:
			return
		}
	}
}

// Tick attempts one sync pass for a tenant. Skipped ticks are cheap and
// logged; the next tick retries.
func (s *Scheduler) Tick(orgID string) {
	s.mu.Lock()
	if s.inFlight[orgID] {
		s.mu.Unlock()
		log.Printf("[Scheduler] Skipping org %s: sync already in flight", orgID)
		return
	}
	if s.running >= s.cfg.MaxConcurrentSyncs {
		s.mu.Unlock()
		log.Printf("[Scheduler] Skipping org %s: global concurrency cap reached (%d)", orgID, s.cfg.MaxConcurrentSyncs)
		return
	}
	s.inFlight[orgID] = true
	s.running++
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] Panic during sync for org %s: %v", orgID, r)
		}
		s.mu.Lock()
		delete(s.inFlight, orgID)
		s.running--
		s.mu.Unlock()
	}()

	accounts, err := s.accountRepo.FindSyncableByOrgID(orgID)
	if err != nil {
		log.Printf("[Scheduler] Failed to list accounts for org %s: %v", orgID, err)
		return
	}
	if len(accounts) == 0 {
		log.Printf("[Scheduler] Skipping org %s: no syncable accounts", orgID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AutoSyncTimeout)
	defer cancel()

	start := time.Now()
	results := s.syncUC.SyncTenant(ctx, orgID, false)

	var ok, failed, skipped int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Success:
			ok++
		default:
			failed++
		}
	}
	log.Printf("[Scheduler] Org %s sync done in %s: %d ok, %d failed, %d skipped",
		orgID, time.Since(start).Round(time.Millisecond), ok, failed, skipped)
}
