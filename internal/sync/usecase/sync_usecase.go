package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	accountdomain "leadpulse-backend/internal/account/domain"
	accountrepo "leadpulse-backend/internal/account/repository"
	"leadpulse-backend/internal/sync/domain"
	"leadpulse-backend/internal/sync/repository"
	"leadpulse-backend/pkg/config"
	"leadpulse-backend/pkg/crypto"

	"golang.org/x/oauth2"
)

// Classifier is the downstream hook invoked for each newly stored message.
// Classification runs out of band; sync never waits on it.
type Classifier interface {
	ClassifyAsync(orgID, messageID string)
}

type syncUsecase struct {
	accountRepo accountrepo.AccountRepository
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	eventRepo   repository.EventRepository

	mailProviders     map[string]domain.MailProvider
	calendarProviders map[string]domain.CalendarProvider

	crypto     *crypto.Service
	classifier Classifier
	cfg        *config.Config
}

func NewSyncUsecase(
	accountRepo accountrepo.AccountRepository,
	threadRepo repository.ThreadRepository,
	messageRepo repository.MessageRepository,
	eventRepo repository.EventRepository,
	mailProviders map[string]domain.MailProvider,
	calendarProviders map[string]domain.CalendarProvider,
	cryptoSvc *crypto.Service,
	classifier Classifier,
	cfg *config.Config,
) SyncUsecase {
	return &syncUsecase{
		accountRepo:       accountRepo,
		threadRepo:        threadRepo,
		messageRepo:       messageRepo,
		eventRepo:         eventRepo,
		mailProviders:     mailProviders,
		calendarProviders: calendarProviders,
		crypto:            cryptoSvc,
		classifier:        classifier,
		cfg:               cfg,
	}
}

// SyncTenant syncs all eligible accounts of one org sequentially. Each
// account is isolated: a failure (or panic) in one account is recorded in its
// result and the loop moves on.
func (u *syncUsecase) SyncTenant(ctx context.Context, orgID string, force bool) []*AccountSyncResult {
	accounts, err := u.accountRepo.FindSyncableByOrgID(orgID)
	if err != nil {
		log.Printf("[Sync] Failed to list accounts for org %s: %v", orgID, err)
		return nil
	}

	now := time.Now()
	results := make([]*AccountSyncResult, 0, len(accounts))
	for _, account := range accounts {
		if ctx.Err() != nil {
			results = append(results, &AccountSyncResult{
				AccountID:  account.ID,
				Provider:   account.Provider,
				Kind:       account.Kind,
				Email:      account.Email,
				Skipped:    true,
				SkipReason: "deadline_exceeded",
			})
			continue
		}

		if !force && account.FreshWithin(u.cooldownFor(account), now) {
			results = append(results, &AccountSyncResult{
				AccountID:  account.ID,
				Provider:   account.Provider,
				Kind:       account.Kind,
				Email:      account.Email,
				Success:    true,
				Skipped:    true,
				SkipReason: "recently_synced",
			})
			continue
		}

		results = append(results, u.syncAccountIsolated(ctx, account))
	}
	return results
}

func (u *syncUsecase) cooldownFor(account *accountdomain.ProviderAccount) time.Duration {
	if account.Kind == accountdomain.KindCalendar {
		return u.cfg.CalendarSyncCooldown
	}
	return u.cfg.EmailSyncCooldown
}

// syncAccountIsolated shields the tenant loop from panics in provider or
// persistence code.
func (u *syncUsecase) syncAccountIsolated(ctx context.Context, account *accountdomain.ProviderAccount) (result *AccountSyncResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Sync] Panic syncing account %s: %v", account.ID, r)
			result = &AccountSyncResult{
				AccountID: account.ID,
				Provider:  account.Provider,
				Kind:      account.Kind,
				Email:     account.Email,
				Error:     fmt.Sprintf("internal error: %v", r),
			}
		}
	}()
	result, err := u.syncAccount(ctx, account)
	if err != nil {
		result = &AccountSyncResult{
			AccountID: account.ID,
			Provider:  account.Provider,
			Kind:      account.Kind,
			Email:     account.Email,
			Error:     err.Error(),
		}
	}
	return result
}

func (u *syncUsecase) SyncAccount(ctx context.Context, orgID, accountID string) (*AccountSyncResult, error) {
	account, err := u.accountRepo.FindByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.OrgID != orgID {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	if !account.Syncable() {
		return &AccountSyncResult{
			AccountID:  account.ID,
			Provider:   account.Provider,
			Kind:       account.Kind,
			Email:      account.Email,
			Skipped:    true,
			SkipReason: "not_syncable",
		}, nil
	}
	return u.syncAccount(ctx, account)
}

// syncAccount runs one bounded sync pass. Cursor handling is the critical
// invariant: the stored cursor only advances after the page it covers has
// been durably persisted, so a crash mid-batch replays messages into the
// dedup key instead of losing them.
func (u *syncUsecase) syncAccount(ctx context.Context, account *accountdomain.ProviderAccount) (*AccountSyncResult, error) {
	result := &AccountSyncResult{
		AccountID: account.ID,
		Provider:  account.Provider,
		Kind:      account.Kind,
		Email:     account.Email,
	}

	creds, err := u.credentialsFor(account)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	account.SyncStatus = accountdomain.SyncStatusSyncing
	if err := u.accountRepo.Update(account); err != nil {
		return nil, err
	}

	var syncErr error
	if account.Kind == accountdomain.KindCalendar {
		syncErr = u.syncCalendar(ctx, account, creds, result)
	} else {
		syncErr = u.syncMail(ctx, account, creds, result)
	}

	u.finishAccount(account, syncErr)
	if syncErr != nil {
		result.Error = syncErr.Error()
		return result, nil
	}
	result.Success = true
	return result, nil
}

// finishAccount records the outcome on the account row. Auth failures move
// the account to action_needed so it stops burning provider quota until the
// operator reconnects it; transient failures leave it retryable.
func (u *syncUsecase) finishAccount(account *accountdomain.ProviderAccount, syncErr error) {
	now := time.Now()
	if syncErr == nil {
		account.Status = accountdomain.StatusConnected
		account.SyncStatus = accountdomain.SyncStatusIdle
		account.TokenStatus = accountdomain.TokenStatusValid
		account.ErrorReason = ""
		account.LastSyncedAt = &now
	} else if domain.IsAuthError(syncErr) {
		account.Status = accountdomain.StatusActionNeeded
		account.SyncStatus = accountdomain.SyncStatusError
		account.TokenStatus = accountdomain.TokenStatusExpired
		account.ErrorReason = syncErr.Error()
	} else if domain.IsTransientError(syncErr) {
		// Rate limits and provider 5xx clear on their own; the account stays
		// connected and the next tick retries from the same cursor.
		account.Status = accountdomain.StatusConnected
		account.SyncStatus = accountdomain.SyncStatusError
		account.ErrorReason = syncErr.Error()
	} else {
		account.Status = accountdomain.StatusError
		account.SyncStatus = accountdomain.SyncStatusError
		account.ErrorReason = syncErr.Error()
	}
	if err := u.accountRepo.Update(account); err != nil {
		log.Printf("[Sync] Failed to update account %s after sync: %v", account.ID, err)
	}
}

func (u *syncUsecase) credentialsFor(account *accountdomain.ProviderAccount) (domain.Credentials, error) {
	accessToken, err := u.crypto.DecryptField(account.OrgID, account.AccessToken, "access_token")
	if err != nil {
		return domain.Credentials{}, err
	}
	refreshToken := ""
	if account.RefreshToken != "" {
		refreshToken, err = u.crypto.DecryptField(account.OrgID, account.RefreshToken, "refresh_token")
		if err != nil {
			return domain.Credentials{}, err
		}
	}

	accountID, orgID := account.ID, account.OrgID
	return domain.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		OnRefresh: func(token *oauth2.Token) error {
			encAccess, err := u.crypto.EncryptField(orgID, token.AccessToken, "access_token")
			if err != nil {
				return err
			}
			encRefresh := ""
			if token.RefreshToken != "" {
				encRefresh, err = u.crypto.EncryptField(orgID, token.RefreshToken, "refresh_token")
				if err != nil {
					return err
				}
			}
			return u.accountRepo.UpdateTokens(accountID, encAccess, encRefresh)
		},
	}, nil
}

func (u *syncUsecase) syncMail(ctx context.Context, account *accountdomain.ProviderAccount, creds domain.Credentials, result *AccountSyncResult) error {
	provider, ok := u.mailProviders[account.Provider]
	if !ok {
		return fmt.Errorf("no mail provider registered for %q", account.Provider)
	}

	cursor := account.Cursor
	pageToken := ""
	for page := 0; page < u.cfg.SyncMaxPages; page++ {
		if err := ctx.Err(); err != nil {
			// Time-boxed run; progress so far is already persisted.
			return nil
		}

		changes, err := provider.ListChanges(ctx, creds, cursor, pageToken, u.cfg.SyncPageSize)
		if err != nil {
			if domain.IsCursorExpired(err) {
				// The provider invalidated the incremental token. Clear the
				// cursor and restart as a full sync; the dedup key absorbs
				// everything already stored.
				log.Printf("[Sync] Cursor expired for account %s, falling back to full sync", account.ID)
				account.Cursor = ""
				if updateErr := u.accountRepo.Update(account); updateErr != nil {
					return updateErr
				}
				cursor, pageToken = "", ""
				continue
			}
			return err
		}

		for _, raw := range changes.Messages {
			if _, err := u.storeMessage(account, raw, result); err != nil {
				return err
			}
		}

		// Cursor advances only now that this page's messages are durable.
		if changes.NewCursor != "" && changes.NewCursor != account.Cursor {
			account.Cursor = changes.NewCursor
			if err := u.accountRepo.Update(account); err != nil {
				return err
			}
		}

		if changes.NextPageToken == "" {
			break
		}
		pageToken = changes.NextPageToken
	}
	return nil
}

// storeMessage normalizes and persists one provider message, resolving its
// thread by subject key. Returns whether a new row was created (false means
// the dedup key already held it).
func (u *syncUsecase) storeMessage(account *accountdomain.ProviderAccount, raw *domain.RawMessage, result *AccountSyncResult) (bool, error) {
	existing, err := u.messageRepo.FindByProviderID(account.OrgID, raw.ProviderMessageID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	thread, createdThread, err := u.threadRepo.FindOrCreate(&domain.Thread{
		OrgID:        account.OrgID,
		AccountID:    account.ID,
		SubjectIndex: subjectIndex(raw.Subject),
		Subject:      raw.Subject,
	})
	if err != nil {
		return false, err
	}
	if createdThread {
		result.NewThreads++
	}

	body, isHTML := raw.BodyText, false
	if body == "" && raw.BodyHTML != "" {
		body, isHTML = raw.BodyHTML, true
	}

	message := &domain.Message{
		OrgID:             account.OrgID,
		ProviderMessageID: raw.ProviderMessageID,
		AccountID:         account.ID,
		ThreadID:          thread.ID,
		FromAddr:          raw.From.Address,
		FromName:          raw.From.Name,
		ToAddrs:           joinAddresses(raw.To),
		CcAddrs:           joinAddresses(raw.Cc),
		Subject:           raw.Subject,
		Snippet:           makeSnippet(raw.BodyText, raw.BodyHTML),
		Body:              body,
		IsHTML:            isHTML,
		HasAttachments:    len(raw.Attachments) > 0,
		IsRead:            !raw.Unread,
		ReceivedAt:        raw.ReceivedAt,
	}
	if len(raw.Attachments) > 0 {
		if meta, err := json.Marshal(raw.Attachments); err == nil {
			message.AttachmentMeta = string(meta)
		}
	}

	if err := u.messageRepo.Create(message); err != nil {
		return false, err
	}
	if err := u.threadRepo.Touch(thread.ID); err != nil {
		log.Printf("[Sync] Failed to touch thread %s: %v", thread.ID, err)
	}
	result.NewMessages++

	if u.classifier != nil {
		u.classifier.ClassifyAsync(account.OrgID, message.ID)
	}
	return true, nil
}

func (u *syncUsecase) syncCalendar(ctx context.Context, account *accountdomain.ProviderAccount, creds domain.Credentials, result *AccountSyncResult) error {
	provider, ok := u.calendarProviders[account.Provider]
	if !ok {
		return fmt.Errorf("no calendar provider registered for %q", account.Provider)
	}

	cursor := account.Cursor
	pageToken := ""
	for page := 0; page < u.cfg.SyncMaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil
		}

		events, err := provider.ListEventChanges(ctx, creds, cursor, pageToken, u.cfg.SyncPageSize)
		if err != nil {
			if domain.IsCursorExpired(err) {
				log.Printf("[Sync] Calendar cursor expired for account %s, falling back to full sync", account.ID)
				account.Cursor = ""
				if updateErr := u.accountRepo.Update(account); updateErr != nil {
					return updateErr
				}
				cursor, pageToken = "", ""
				continue
			}
			return err
		}

		for _, raw := range events.Events {
			created, err := u.eventRepo.Upsert(&domain.CalendarEvent{
				OrgID:           account.OrgID,
				ProviderEventID: raw.ProviderEventID,
				AccountID:       account.ID,
				Title:           raw.Title,
				Location:        raw.Location,
				OrganizerAddr:   raw.Organizer.Address,
				StartsAt:        raw.StartsAt,
				EndsAt:          raw.EndsAt,
				Cancelled:       raw.Cancelled,
			})
			if err != nil {
				return err
			}
			if created {
				result.NewEvents++
			}
		}

		if events.NewCursor != "" && events.NewCursor != account.Cursor {
			account.Cursor = events.NewCursor
			if err := u.accountRepo.Update(account); err != nil {
				return err
			}
		}

		if events.NextPageToken == "" {
			break
		}
		pageToken = events.NextPageToken
	}
	return nil
}
