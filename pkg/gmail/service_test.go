package gmail

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	syncdomain "leadpulse-backend/internal/sync/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Credentials without a refresh token keep the oauth2 transport from dialing
// the real token endpoint.
func testCreds() syncdomain.Credentials {
	return syncdomain.Credentials{AccessToken: "test-access-token"}
}

func writeTestMessage(w http.ResponseWriter, id string) {
	fmt.Fprintf(w, `{
		"id": "%s",
		"threadId": "thread-1",
		"internalDate": "1756500000000",
		"labelIds": ["INBOX", "UNREAD"],
		"payload": {
			"mimeType": "text/plain",
			"headers": [
				{"name": "From", "value": "Lead <lead@prospect.com>"},
				{"name": "Subject", "value": "Hello"}
			],
			"body": {"data": "aGVsbG8="}
		}
	}`, id)
}

func TestHistoryRunCursorOnlyOnFinalPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gmail/v1/users/me/history":
			if r.URL.Query().Get("pageToken") == "p2" {
				fmt.Fprint(w, `{
					"history": [{"id": "510", "messagesAdded": [{"message": {"id": "msg-2"}}]}],
					"historyId": "999"
				}`)
				return
			}
			fmt.Fprint(w, `{
				"history": [{"id": "505", "messagesAdded": [{"message": {"id": "msg-1"}}]}],
				"historyId": "999",
				"nextPageToken": "p2"
			}`)
		case "/gmail/v1/users/me/messages/msg-1":
			writeTestMessage(w, "msg-1")
		case "/gmail/v1/users/me/messages/msg-2":
			writeTestMessage(w, "msg-2")
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewServiceWithEndpoint("client-id", "client-secret", server.URL)

	// Page one: more pages follow, so the mailbox's head historyId must not
	// leak into the cursor yet. Persisting it here would skip page two if
	// the run were cut short.
	page, err := svc.ListChanges(context.Background(), testCreds(), "500", "", 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "msg-1", page.Messages[0].ProviderMessageID)
	assert.Equal(t, "lead@prospect.com", page.Messages[0].From.Address)
	assert.True(t, page.Messages[0].Unread)
	assert.Equal(t, "p2", page.NextPageToken)
	assert.Empty(t, page.NewCursor)

	// Final page: the run is complete, the cursor may advance.
	page, err = svc.ListChanges(context.Background(), testCreds(), "500", "p2", 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Empty(t, page.NextPageToken)
	assert.Equal(t, "999", page.NewCursor)
}

func TestInitialSyncCursorFromProfileOnFinalPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gmail/v1/users/me/messages":
			if r.URL.Query().Get("pageToken") == "" {
				fmt.Fprint(w, `{"messages": [{"id": "msg-1"}], "nextPageToken": "p2"}`)
				return
			}
			fmt.Fprint(w, `{"messages": [{"id": "msg-2"}]}`)
		case "/gmail/v1/users/me/messages/msg-1":
			writeTestMessage(w, "msg-1")
		case "/gmail/v1/users/me/messages/msg-2":
			writeTestMessage(w, "msg-2")
		case "/gmail/v1/users/me/profile":
			fmt.Fprint(w, `{"emailAddress": "rep@acme.com", "historyId": "777"}`)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewServiceWithEndpoint("client-id", "client-secret", server.URL)

	page, err := svc.ListChanges(context.Background(), testCreds(), "", "", 50)
	require.NoError(t, err)
	assert.Equal(t, "p2", page.NextPageToken)
	assert.Empty(t, page.NewCursor)

	page, err = svc.ListChanges(context.Background(), testCreds(), "", "p2", 50)
	require.NoError(t, err)
	assert.Empty(t, page.NextPageToken)
	assert.Equal(t, "777", page.NewCursor)
}

func TestHistoryNotFoundMeansCursorExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": 404, "message": "Start history ID is too old"}}`)
	}))
	defer server.Close()

	svc := NewServiceWithEndpoint("client-id", "client-secret", server.URL)
	_, err := svc.ListChanges(context.Background(), testCreds(), "12", "", 50)
	assert.True(t, syncdomain.IsCursorExpired(err))
}
