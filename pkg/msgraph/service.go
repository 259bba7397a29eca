package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	syncdomain "leadpulse-backend/internal/sync/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Service implements the mail provider contract against Microsoft Graph
// using delta queries. The cursor is the full deltaLink URL Graph hands back
// at the end of a delta run.
type Service struct {
	clientID     string
	clientSecret string
	baseURL      string
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      graphBaseURL,
	}
}

// NewServiceWithBaseURL is used by tests to point at a stub server.
func NewServiceWithBaseURL(clientID, clientSecret, baseURL string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
	}
}

func (s *Service) httpClient(ctx context.Context, creds syncdomain.Credentials) *http.Client {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     microsoft.AzureADEndpoint("common"),
		Scopes:       []string{"Mail.Read", "offline_access"},
	}

	src := config.TokenSource(ctx, token)
	if creds.OnRefresh != nil {
		src = &notifySource{src: src, current: token, callback: creds.OnRefresh}
	}
	return oauth2.NewClient(ctx, src)
}

type notifySource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback syncdomain.TokenUpdateFunc
}

func (n *notifySource) Token() (*oauth2.Token, error) {
	t, err := n.src.Token()
	if err != nil {
		return nil, err
	}
	if n.current.AccessToken != t.AccessToken {
		n.current = t
		_ = n.callback(t)
	}
	return t, nil
}

// Graph wire types, parsed defensively at the boundary.

type graphAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID               string         `json:"id"`
	ConversationID   string         `json:"conversationId"`
	Subject          string         `json:"subject"`
	From             *graphAddress  `json:"from"`
	ToRecipients     []graphAddress `json:"toRecipients"`
	CcRecipients     []graphAddress `json:"ccRecipients"`
	ReceivedDateTime string         `json:"receivedDateTime"`
	IsRead           *bool          `json:"isRead"`
	HasAttachments   bool           `json:"hasAttachments"`
	Body             *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	// Present on tombstones in delta responses.
	Removed *struct {
		Reason string `json:"reason"`
	} `json:"@removed"`
}

type deltaResponse struct {
	Value     []graphMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

// ListChanges pages through a Graph delta run. The pageToken is Graph's
// nextLink; the NewCursor (deltaLink) only appears on the final page, so the
// caller advances its cursor exactly once per completed run.
func (s *Service) ListChanges(ctx context.Context, creds syncdomain.Credentials, cursor, pageToken string, pageSize int64) (*syncdomain.ChangePage, error) {
	requestURL := pageToken
	if requestURL == "" {
		requestURL = cursor
	}
	if requestURL == "" {
		requestURL = fmt.Sprintf("%s/me/mailFolders/inbox/messages/delta?$top=%d", s.baseURL, pageSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", "odata.maxpagesize="+fmt.Sprint(pageSize))

	resp, err := s.httpClient(ctx, creds).Do(req)
	if err != nil {
		return nil, syncdomain.ClassifyProviderError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncdomain.ClassifyProviderError(err)
	}

	switch {
	case resp.StatusCode == http.StatusGone:
		// Delta token aged out; caller restarts a full delta run.
		return nil, &syncdomain.CursorExpiredError{Err: fmt.Errorf("graph delta token expired")}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &syncdomain.AuthError{Err: fmt.Errorf("graph API error (%d): %s", resp.StatusCode, string(body))}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &syncdomain.TransientError{Err: fmt.Errorf("graph API error (%d)", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("graph API error (%d): %s", resp.StatusCode, string(body))
	}

	var delta deltaResponse
	if err := json.Unmarshal(body, &delta); err != nil {
		return nil, &syncdomain.MalformedResponseError{Err: err}
	}

	messages := make([]*syncdomain.RawMessage, 0, len(delta.Value))
	for i := range delta.Value {
		gm := &delta.Value[i]
		if gm.ID == "" || gm.Removed != nil {
			continue
		}
		messages = append(messages, convertGraphMessage(gm))
	}

	return &syncdomain.ChangePage{
		Messages:      messages,
		NextPageToken: delta.NextLink,
		NewCursor:     delta.DeltaLink,
	}, nil
}

func convertGraphMessage(gm *graphMessage) *syncdomain.RawMessage {
	raw := &syncdomain.RawMessage{
		ProviderMessageID: gm.ID,
		ProviderThreadID:  gm.ConversationID,
		Subject:           gm.Subject,
		To:                convertAddresses(gm.ToRecipients),
		Cc:                convertAddresses(gm.CcRecipients),
	}

	if gm.From != nil {
		raw.From = syncdomain.RawAddress{
			Name:    gm.From.EmailAddress.Name,
			Address: gm.From.EmailAddress.Address,
		}
	}
	if gm.Body != nil {
		if strings.EqualFold(gm.Body.ContentType, "html") {
			raw.BodyHTML = gm.Body.Content
		} else {
			raw.BodyText = gm.Body.Content
		}
	}
	if gm.IsRead != nil {
		raw.Unread = !*gm.IsRead
	}
	if gm.HasAttachments {
		// Graph delta payloads omit attachment details; record presence only.
		raw.Attachments = []syncdomain.RawAttachment{}
	}
	if t, err := time.Parse(time.RFC3339, gm.ReceivedDateTime); err == nil {
		raw.ReceivedAt = t
	}
	return raw
}

func convertAddresses(in []graphAddress) []syncdomain.RawAddress {
	if len(in) == 0 {
		return nil
	}
	out := make([]syncdomain.RawAddress, 0, len(in))
	for _, a := range in {
		out = append(out, syncdomain.RawAddress{
			Name:    a.EmailAddress.Name,
			Address: a.EmailAddress.Address,
		})
	}
	return out
}

// Validate checks the URL shape of a stored Graph cursor so an operator
// pasting garbage surfaces early instead of as a confusing 400 mid-sync.
func (s *Service) Validate(cursor string) error {
	if cursor == "" {
		return nil
	}
	if _, err := url.Parse(cursor); err != nil {
		return fmt.Errorf("invalid graph delta link: %w", err)
	}
	return nil
}
