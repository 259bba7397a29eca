package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is invoked when a provider client refreshes OAuth tokens,
// so the rotated tokens can be persisted.
type TokenUpdateFunc func(token *oauth2.Token) error

// Credentials carries the decrypted tokens a provider client needs for one
// account, plus the refresh-persistence callback.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	OnRefresh    TokenUpdateFunc
}

// RawAddress is a parsed mailbox participant.
type RawAddress struct {
	Name    string
	Address string
}

// RawAttachment is attachment metadata only. Contents are never fetched
// during sync.
type RawAttachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// RawMessage is the provider-neutral shape both mail providers emit after
// defensive parsing at the boundary. Everything downstream of the provider
// clients works on this type.
type RawMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	From              RawAddress
	To                []RawAddress
	Cc                []RawAddress
	Subject           string
	BodyText          string
	BodyHTML          string
	Attachments       []RawAttachment
	ReceivedAt        time.Time
	Unread            bool
}

// ChangePage is one page of provider changes. NewCursor is the cursor value
// the caller may persist once this page's messages are durable; providers
// that only hand out a new cursor at the end of a delta run leave it empty on
// intermediate pages.
type ChangePage struct {
	Messages      []*RawMessage
	NextPageToken string
	NewCursor     string
}

// MailProvider lists changed messages since a cursor. An empty cursor means a
// full/initial sync.
type MailProvider interface {
	ListChanges(ctx context.Context, creds Credentials, cursor, pageToken string, pageSize int64) (*ChangePage, error)
}

// RawEvent is the provider-neutral calendar event shape.
type RawEvent struct {
	ProviderEventID string
	Title           string
	Location        string
	Organizer       RawAddress
	StartsAt        time.Time
	EndsAt          time.Time
	Cancelled       bool
}

// EventPage mirrors ChangePage for calendar deltas.
type EventPage struct {
	Events        []*RawEvent
	NextPageToken string
	NewCursor     string
}

// CalendarProvider lists changed events since a cursor.
type CalendarProvider interface {
	ListEventChanges(ctx context.Context, creds Credentials, cursor, pageToken string, pageSize int64) (*EventPage, error)
}
