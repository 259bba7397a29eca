package domain

import "time"

// Thread groups messages of one account by normalized subject. The
// (org_id, account_id, subject_index) key resolves to at most one thread;
// creation is lazy on the first message of a subject.
type Thread struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	OrgID         string    `json:"org_id" gorm:"uniqueIndex:idx_thread_subject;not null"`
	AccountID     string    `json:"account_id" gorm:"uniqueIndex:idx_thread_subject;not null"`
	SubjectIndex  string    `json:"subject_index" gorm:"uniqueIndex:idx_thread_subject;not null"`
	Subject       string    `json:"subject"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is one normalized provider message. (org_id, provider_message_id)
// is unique; re-inserting the same provider message is a no-op, which is what
// makes crash-retry of a sync batch safe. Immutable after creation except for
// workflow status fields.
type Message struct {
	ID                string `json:"id" gorm:"primaryKey"`
	OrgID             string `json:"org_id" gorm:"uniqueIndex:idx_msg_provider;not null"`
	ProviderMessageID string `json:"provider_message_id" gorm:"uniqueIndex:idx_msg_provider;not null"`
	AccountID         string `json:"account_id" gorm:"index;not null"`
	ThreadID          string `json:"thread_id" gorm:"index;not null"`

	FromAddr string `json:"from_addr"`
	FromName string `json:"from_name"`
	ToAddrs  string `json:"to_addrs"`
	CcAddrs  string `json:"cc_addrs"`
	Subject  string `json:"subject"`

	Snippet        string `json:"snippet"`
	Body           string `json:"body" gorm:"type:text"`
	IsHTML         bool   `json:"is_html"`
	HasAttachments bool   `json:"has_attachments"`
	// Attachment metadata only; contents are never fetched.
	AttachmentMeta string `json:"attachment_meta,omitempty" gorm:"type:text"`

	IsRead     bool      `json:"is_read"`
	ReceivedAt time.Time `json:"received_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CalendarEvent is one normalized provider calendar event, deduplicated on
// (org_id, provider_event_id).
type CalendarEvent struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	OrgID           string    `json:"org_id" gorm:"uniqueIndex:idx_event_provider;not null"`
	ProviderEventID string    `json:"provider_event_id" gorm:"uniqueIndex:idx_event_provider;not null"`
	AccountID       string    `json:"account_id" gorm:"index;not null"`
	Title           string    `json:"title"`
	Location        string    `json:"location"`
	OrganizerAddr   string    `json:"organizer_addr"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	Cancelled       bool      `json:"cancelled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
