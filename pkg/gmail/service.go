package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	syncdomain "leadpulse-backend/internal/sync/domain"
	"leadpulse-backend/pkg/googleauth"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Service implements the mail provider contract against the Gmail API.
// Incremental syncs walk Users.History.List keyed by the stored historyId;
// initial syncs page through Users.Messages.List.
type Service struct {
	clientID     string
	clientSecret string
	endpoint     string
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// NewServiceWithEndpoint points API calls at an alternate base URL.
func NewServiceWithEndpoint(clientID, clientSecret, endpoint string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoint:     endpoint,
	}
}

func (s *Service) gmailService(ctx context.Context, creds syncdomain.Credentials) (*gmail.Service, error) {
	client := googleauth.NewHTTPClient(ctx, s.clientID, s.clientSecret, creds)
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return srv, nil
}

// ListChanges returns one page of messages changed since cursor. An empty
// cursor triggers an initial sync. The returned NewCursor is only safe to
// persist after the page's messages are durable; the caller owns that
// ordering.
func (s *Service) ListChanges(ctx context.Context, creds syncdomain.Credentials, cursor, pageToken string, pageSize int64) (*syncdomain.ChangePage, error) {
	srv, err := s.gmailService(ctx, creds)
	if err != nil {
		return nil, syncdomain.ClassifyProviderError(err)
	}

	if cursor == "" {
		return s.initialPage(ctx, srv, pageToken, pageSize)
	}
	return s.historyPage(ctx, srv, cursor, pageToken, pageSize)
}

func (s *Service) initialPage(ctx context.Context, srv *gmail.Service, pageToken string, pageSize int64) (*syncdomain.ChangePage, error) {
	call := srv.Users.Messages.List("me").LabelIds("INBOX").MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, syncdomain.ClassifyProviderError(err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}

	messages, err := s.fetchMessages(ctx, srv, ids)
	if err != nil {
		return nil, err
	}

	page := &syncdomain.ChangePage{
		Messages:      messages,
		NextPageToken: resp.NextPageToken,
	}

	// The cursor only becomes known on the final page: the mailbox's current
	// historyId marks where incremental syncs take over.
	if resp.NextPageToken == "" {
		profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
		if err != nil {
			return nil, syncdomain.ClassifyProviderError(err)
		}
		page.NewCursor = strconv.FormatUint(profile.HistoryId, 10)
	}

	return page, nil
}

func (s *Service) historyPage(ctx context.Context, srv *gmail.Service, cursor, pageToken string, pageSize int64) (*syncdomain.ChangePage, error) {
	startID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, &syncdomain.CursorExpiredError{Err: fmt.Errorf("unparseable historyId %q", cursor)}
	}

	call := srv.Users.History.List("me").
		StartHistoryId(startID).
		HistoryTypes("messageAdded").
		MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		// Gmail answers 404 when the historyId is older than the retention
		// window; the caller must fall back to a full sync.
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 404 {
			return nil, &syncdomain.CursorExpiredError{Err: err}
		}
		return nil, syncdomain.ClassifyProviderError(err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message == nil || seen[added.Message.Id] {
				continue
			}
			seen[added.Message.Id] = true
			ids = append(ids, added.Message.Id)
		}
	}

	messages, err := s.fetchMessages(ctx, srv, ids)
	if err != nil {
		return nil, err
	}

	page := &syncdomain.ChangePage{
		Messages:      messages,
		NextPageToken: resp.NextPageToken,
	}
	// resp.HistoryId is the mailbox's current head, not this page's position.
	// Persisting it mid-run would skip the remaining pages on resume, so it
	// only becomes the cursor once the run has no more pages.
	if resp.NextPageToken == "" && resp.HistoryId > 0 {
		page.NewCursor = strconv.FormatUint(resp.HistoryId, 10)
	}
	return page, nil
}

func (s *Service) fetchMessages(ctx context.Context, srv *gmail.Service, ids []string) ([]*syncdomain.RawMessage, error) {
	messages := make([]*syncdomain.RawMessage, 0, len(ids))
	for _, id := range ids {
		fullMsg, err := srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		if err != nil {
			// A message deleted between listing and fetch is not an error.
			if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 404 {
				continue
			}
			return nil, syncdomain.ClassifyProviderError(err)
		}
		raw, err := convertMessage(fullMsg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, raw)
	}
	return messages, nil
}

// Watch (re)registers Gmail push notifications for the account's inbox on
// the given Pub/Sub topic. Any existing watch is stopped first, since Gmail
// allows only one push client per user.
func (s *Service) Watch(ctx context.Context, creds syncdomain.Credentials, topicName string) error {
	srv, err := s.gmailService(ctx, creds)
	if err != nil {
		return syncdomain.ClassifyProviderError(err)
	}

	_ = srv.Users.Stop("me").Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}
	if _, err := srv.Users.Watch("me", req).Context(ctx).Do(); err != nil {
		return syncdomain.ClassifyProviderError(fmt.Errorf("unable to watch mailbox: %v", err))
	}
	return nil
}

// Helper functions

func convertMessage(msg *gmail.Message) (*syncdomain.RawMessage, error) {
	if msg.Payload == nil {
		return nil, &syncdomain.MalformedResponseError{Err: fmt.Errorf("message %s has no payload", msg.Id)}
	}

	from := parseAddress(getHeader(msg.Payload.Headers, "From"))
	body, htmlBody := getMessageBody(msg.Payload)

	return &syncdomain.RawMessage{
		ProviderMessageID: msg.Id,
		ProviderThreadID:  msg.ThreadId,
		From:              from,
		To:                parseAddressList(getHeader(msg.Payload.Headers, "To")),
		Cc:                parseAddressList(getHeader(msg.Payload.Headers, "Cc")),
		Subject:           getHeader(msg.Payload.Headers, "Subject"),
		BodyText:          body,
		BodyHTML:          htmlBody,
		Attachments:       getAttachments(msg.Payload),
		ReceivedAt:        time.Unix(msg.InternalDate/1000, 0),
		Unread:            hasLabel(msg.LabelIds, "UNREAD"),
	}, nil
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// parseAddress splits a "Name <addr@example.com>" header value.
func parseAddress(value string) syncdomain.RawAddress {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, "<"); idx >= 0 {
		name := strings.Trim(strings.TrimSpace(value[:idx]), `"`)
		addr := strings.TrimSuffix(value[idx+1:], ">")
		return syncdomain.RawAddress{Name: name, Address: strings.TrimSpace(addr)}
	}
	return syncdomain.RawAddress{Address: value}
}

func parseAddressList(value string) []syncdomain.RawAddress {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	addrs := make([]syncdomain.RawAddress, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		addrs = append(addrs, parseAddress(part))
	}
	return addrs
}

// getMessageBody returns (text, html) from a single-part payload or the first
// matching sections of a multipart message.
func getMessageBody(payload *gmail.MessagePart) (string, string) {
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			if payload.MimeType == "text/html" {
				return "", string(data)
			}
			return string(data), ""
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/html":
						if htmlBody == "" {
							htmlBody = string(data)
						}
					case "text/plain":
						if plainBody == "" {
							plainBody = string(data)
						}
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	return plainBody, htmlBody
}

// getAttachments records attachment metadata only; contents are never
// downloaded during sync.
func getAttachments(payload *gmail.MessagePart) []syncdomain.RawAttachment {
	var attachments []syncdomain.RawAttachment

	var findAttachments func(parts []*gmail.MessagePart)
	findAttachments = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				attachments = append(attachments, syncdomain.RawAttachment{
					ID:       part.Body.AttachmentId,
					Name:     part.Filename,
					MimeType: part.MimeType,
					Size:     int64(part.Body.Size),
				})
			}
			if len(part.Parts) > 0 {
				findAttachments(part.Parts)
			}
		}
	}
	findAttachments(payload.Parts)
	return attachments
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
