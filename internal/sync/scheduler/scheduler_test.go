package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	accountdomain "leadpulse-backend/internal/account/domain"
	"leadpulse-backend/internal/sync/usecase"
	"leadpulse-backend/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrgRepo struct {
	orgs []*accountdomain.Org
}

func (r *fakeOrgRepo) FindByID(id string) (*accountdomain.Org, error) { return nil, nil }
func (r *fakeOrgRepo) FindAll() ([]*accountdomain.Org, error)        { return r.orgs, nil }
func (r *fakeOrgRepo) Create(org *accountdomain.Org) error           { return nil }

type fakeAccountRepo struct {
	accounts []*accountdomain.ProviderAccount
}

func (r *fakeAccountRepo) FindByID(id string) (*accountdomain.ProviderAccount, error) {
	return nil, nil
}
func (r *fakeAccountRepo) FindByOrgID(orgID string) ([]*accountdomain.ProviderAccount, error) {
	return r.accounts, nil
}
func (r *fakeAccountRepo) FindSyncableByOrgID(orgID string) ([]*accountdomain.ProviderAccount, error) {
	return r.accounts, nil
}
func (r *fakeAccountRepo) FindByEmail(email string) (*accountdomain.ProviderAccount, error) {
	return nil, nil
}
func (r *fakeAccountRepo) Create(a *accountdomain.ProviderAccount) error { return nil }
func (r *fakeAccountRepo) Update(a *accountdomain.ProviderAccount) error { return nil }
func (r *fakeAccountRepo) UpdateTokens(id, access, refresh string) error { return nil }

// blockingSyncUsecase blocks SyncTenant until released, so tests can hold a
// tenant in the in-flight state.
type blockingSyncUsecase struct {
	mu      sync.Mutex
	started chan string
	release chan struct{}
	calls   int
	panics  bool
}

func newBlockingSyncUsecase() *blockingSyncUsecase {
	return &blockingSyncUsecase{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (u *blockingSyncUsecase) SyncTenant(ctx context.Context, orgID string, force bool) []*usecase.AccountSyncResult {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	if u.panics {
		panic("sync blew up")
	}
	u.started <- orgID
	<-u.release
	return []*usecase.AccountSyncResult{{AccountID: "a1", Success: true}}
}

func (u *blockingSyncUsecase) SyncAccount(ctx context.Context, orgID, accountID string) (*usecase.AccountSyncResult, error) {
	return nil, nil
}

func (u *blockingSyncUsecase) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func testSchedulerConfig() *config.Config {
	return &config.Config{
		SyncInterval:       time.Hour,
		SyncJitter:         0,
		MaxConcurrentSyncs: 2,
		AutoSyncTimeout:    time.Minute,
	}
}

func syncableAccount() *accountdomain.ProviderAccount {
	return &accountdomain.ProviderAccount{
		ID:     "a1",
		Status: accountdomain.StatusConnected,
		Kind:   accountdomain.KindEmail,
	}
}

func TestTickSkipsTenantAlreadyInFlight(t *testing.T) {
	syncUC := newBlockingSyncUsecase()
	s := NewScheduler(&fakeOrgRepo{}, &fakeAccountRepo{accounts: []*accountdomain.ProviderAccount{syncableAccount()}}, syncUC, testSchedulerConfig())

	done := make(chan struct{})
	go func() {
		s.Tick("org-1")
		close(done)
	}()
	<-syncUC.started

	// Second tick for the same org while the first is still running.
	s.Tick("org-1")
	assert.Equal(t, 1, syncUC.callCount())

	close(syncUC.release)
	<-done

	// After completion the tenant is tickable again.
	syncUC.release = make(chan struct{})
	go s.Tick("org-1")
	<-syncUC.started
	assert.Equal(t, 2, syncUC.callCount())
	close(syncUC.release)
}

func TestTickEnforcesGlobalConcurrencyCap(t *testing.T) {
	syncUC := newBlockingSyncUsecase()
	s := NewScheduler(&fakeOrgRepo{}, &fakeAccountRepo{accounts: []*accountdomain.ProviderAccount{syncableAccount()}}, syncUC, testSchedulerConfig())

	var wg sync.WaitGroup
	for _, org := range []string{"org-1", "org-2"} {
		wg.Add(1)
		go func(org string) {
			defer wg.Done()
			s.Tick(org)
		}(org)
	}
	<-syncUC.started
	<-syncUC.started

	// Cap is 2; a third tenant must be skipped, not queued.
	s.Tick("org-3")
	assert.Equal(t, 2, syncUC.callCount())

	close(syncUC.release)
	wg.Wait()

	// With capacity freed, the third tenant syncs on its next tick.
	syncUC.release = make(chan struct{})
	go s.Tick("org-3")
	<-syncUC.started
	assert.Equal(t, 3, syncUC.callCount())
	close(syncUC.release)
}

func TestTickSkipsOrgWithNoAccounts(t *testing.T) {
	syncUC := newBlockingSyncUsecase()
	s := NewScheduler(&fakeOrgRepo{}, &fakeAccountRepo{}, syncUC, testSchedulerConfig())

	s.Tick("org-1")
	assert.Equal(t, 0, syncUC.callCount())
}

func TestTickClearsInFlightAfterPanic(t *testing.T) {
	syncUC := newBlockingSyncUsecase()
	syncUC.panics = true
	s := NewScheduler(&fakeOrgRepo{}, &fakeAccountRepo{accounts: []*accountdomain.ProviderAccount{syncableAccount()}}, syncUC, testSchedulerConfig())

	require.NotPanics(t, func() { s.Tick("org-1") })
	assert.Equal(t, 1, syncUC.callCount())

	// The panic must not leak the in-flight slot.
	syncUC.panics = false
	go s.Tick("org-1")
	<-syncUC.started
	assert.Equal(t, 2, syncUC.callCount())
	close(syncUC.release)
}

func TestStartLaunchesLoopPerOrg(t *testing.T) {
	syncUC := newBlockingSyncUsecase()
	orgs := &fakeOrgRepo{orgs: []*accountdomain.Org{{ID: "org-1"}, {ID: "org-2"}}}
	s := NewScheduler(orgs, &fakeAccountRepo{accounts: []*accountdomain.ProviderAccount{syncableAccount()}}, syncUC, testSchedulerConfig())

	require.NoError(t, s.Start())

	// Both loops tick immediately after their (zero) jitter.
	seen := map[string]bool{}
	seen[<-syncUC.started] = true
	seen[<-syncUC.started] = true
	assert.True(t, seen["org-1"])
	assert.True(t, seen["org-2"])

	close(syncUC.release)
	s.Stop()
}
