package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	accountdomain "leadpulse-backend/internal/account/domain"
	accountrepo "leadpulse-backend/internal/account/repository"
	syncdomain "leadpulse-backend/internal/sync/domain"
	"leadpulse-backend/internal/sync/usecase"
	"leadpulse-backend/pkg/crypto"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes to the watch topic.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// MailboxWatcher registers push notifications for one mailbox.
type MailboxWatcher interface {
	Watch(ctx context.Context, creds syncdomain.Credentials, topicName string) error
}

// Service consumes Gmail push notifications from Pub/Sub and triggers an
// out-of-band sync for the affected account, so changes land ahead of the
// next scheduled tick. On startup it re-registers the mailbox watches, which
// Gmail expires after seven days.
type Service struct {
	pubsubClient *pubsub.Client
	orgRepo      accountrepo.OrgRepository
	accountRepo  accountrepo.AccountRepository
	syncUsecase  usecase.SyncUsecase
	crypto       *crypto.Service
	watcher      MailboxWatcher
	projectID    string
	topicName    string
	subName      string

	// Deduplication: historyIds per account are monotonic, so anything at or
	// below the last seen value is a redelivery.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(
	projectID, topicName string,
	orgRepo accountrepo.OrgRepository,
	accountRepo accountrepo.AccountRepository,
	syncUsecase usecase.SyncUsecase,
	cryptoSvc *crypto.Service,
	watcher MailboxWatcher,
	credentialsFile string,
) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient:  client,
		orgRepo:       orgRepo,
		accountRepo:   accountRepo,
		syncUsecase:   syncUsecase,
		crypto:        cryptoSvc,
		watcher:       watcher,
		projectID:     projectID,
		topicName:     topicName,
		subName:       topicName + "-sub",
		lastHistoryID: make(map[string]uint64),
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	s.registerWatches(ctx)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic does not exist, cannot create subscription")
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

// registerWatches (re)subscribes every syncable Gmail mailbox to the push
// topic. Failures are logged per account; the scheduler still covers
// unwatched mailboxes.
func (s *Service) registerWatches(ctx context.Context) {
	if s.watcher == nil {
		return
	}

	orgs, err := s.orgRepo.FindAll()
	if err != nil {
		log.Printf("[PubSub] Failed to list orgs for watch registration: %v", err)
		return
	}

	fullTopic := fmt.Sprintf("projects/%s/topics/%s", s.projectID, s.topicName)
	for _, org := range orgs {
		accounts, err := s.accountRepo.FindSyncableByOrgID(org.ID)
		if err != nil {
			log.Printf("[PubSub] Failed to list accounts for org %s: %v", org.ID, err)
			continue
		}
		for _, account := range accounts {
			if account.Provider != accountdomain.ProviderGmail || account.Kind != accountdomain.KindEmail {
				continue
			}
			creds, err := s.credentialsFor(account)
			if err != nil {
				log.Printf("[PubSub] Failed to load credentials for account %s: %v", account.ID, err)
				continue
			}
			if err := s.watcher.Watch(ctx, creds, fullTopic); err != nil {
				log.Printf("[PubSub] Failed to register watch for account %s: %v", account.ID, err)
				continue
			}
			log.Printf("[PubSub] Registered watch for %s", account.Email)
		}
	}
}

func (s *Service) credentialsFor(account *accountdomain.ProviderAccount) (syncdomain.Credentials, error) {
	accessToken, err := s.crypto.DecryptField(account.OrgID, account.AccessToken, "access_token")
	if err != nil {
		return syncdomain.Credentials{}, err
	}
	refreshToken := ""
	if account.RefreshToken != "" {
		refreshToken, err = s.crypto.DecryptField(account.OrgID, account.RefreshToken, "refresh_token")
		if err != nil {
			return syncdomain.Credentials{}, err
		}
	}
	return syncdomain.Credentials{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *Service) handleMessage(msg *pubsub.Message) {
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	log.Printf("[PubSub] Received notification for: %s (historyId: %d)", notification.EmailAddress, notification.HistoryID)

	account, err := s.accountRepo.FindByEmail(notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding account for %s: %v", notification.EmailAddress, err)
		return
	}
	if account == nil {
		log.Printf("[PubSub] No account registered for %s", notification.EmailAddress)
		return
	}

	s.mu.Lock()
	lastHID, seen := s.lastHistoryID[account.ID]
	if seen && notification.HistoryID <= lastHID {
		s.mu.Unlock()
		log.Printf("[PubSub] Skipping duplicate notification for account %s (historyId %d <= last %d)", account.ID, notification.HistoryID, lastHID)
		return
	}
	s.lastHistoryID[account.ID] = notification.HistoryID
	s.mu.Unlock()

	// Sync out of band; the push only tells us something changed, the cursor
	// in the account row decides what gets fetched.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		result, err := s.syncUsecase.SyncAccount(ctx, account.OrgID, account.ID)
		if err != nil {
			log.Printf("[PubSub] Push-triggered sync failed for account %s: %v", account.ID, err)
			return
		}
		log.Printf("[PubSub] Push-triggered sync for account %s: %d new messages", account.ID, result.NewMessages)
	}()
}
