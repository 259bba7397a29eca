package usecase

import (
	"context"
)

// AccountSyncResult reports the outcome of syncing one account. Failures are
// carried as data so one account never sinks its siblings.
type AccountSyncResult struct {
	AccountID   string `json:"account_id"`
	Provider    string `json:"provider"`
	Kind        string `json:"kind"`
	Email       string `json:"email"`
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped,omitempty"`
	SkipReason  string `json:"skip_reason,omitempty"`
	NewMessages int    `json:"new_messages"`
	NewThreads  int    `json:"new_threads"`
	NewEvents   int    `json:"new_events"`
	Error       string `json:"error,omitempty"`
}

// SyncUsecase drives incremental synchronization for provider accounts.
type SyncUsecase interface {
	// SyncTenant syncs every eligible account of an org sequentially. Force
	// bypasses freshness cooldowns. Always returns one result per account.
	SyncTenant(ctx context.Context, orgID string, force bool) []*AccountSyncResult

	// SyncAccount runs one cursor-driven sync pass for a single account.
	SyncAccount(ctx context.Context, orgID, accountID string) (*AccountSyncResult, error)
}
