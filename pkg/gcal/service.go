package gcal

import (
	"context"
	"fmt"
	"time"

	syncdomain "leadpulse-backend/internal/sync/domain"
	"leadpulse-backend/pkg/googleauth"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Service implements the calendar provider contract against the Google
// Calendar API using syncToken-based incremental listing.
type Service struct {
	clientID     string
	clientSecret string
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// ListEventChanges returns one page of changed events. An empty cursor means
// an initial sync bounded to a trailing window; NewCursor (the nextSyncToken)
// only appears on the final page.
func (s *Service) ListEventChanges(ctx context.Context, creds syncdomain.Credentials, cursor, pageToken string, pageSize int64) (*syncdomain.EventPage, error) {
	client := googleauth.NewHTTPClient(ctx, s.clientID, s.clientSecret, creds)
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, syncdomain.ClassifyProviderError(fmt.Errorf("unable to create Calendar service: %v", err))
	}

	call := srv.Events.List("primary").MaxResults(pageSize).SingleEvents(true)
	if cursor != "" {
		call = call.SyncToken(cursor)
	} else {
		// Initial sync looks back one month; older events are not lead signal.
		call = call.TimeMin(time.Now().AddDate(0, -1, 0).Format(time.RFC3339))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		// 410 GONE: the syncToken aged out, a full window re-read is needed.
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 410 {
			return nil, &syncdomain.CursorExpiredError{Err: err}
		}
		return nil, syncdomain.ClassifyProviderError(err)
	}

	events := make([]*syncdomain.RawEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == "" {
			continue
		}
		events = append(events, convertEvent(item))
	}

	return &syncdomain.EventPage{
		Events:        events,
		NextPageToken: resp.NextPageToken,
		NewCursor:     resp.NextSyncToken,
	}, nil
}

func convertEvent(item *calendar.Event) *syncdomain.RawEvent {
	event := &syncdomain.RawEvent{
		ProviderEventID: item.Id,
		Title:           item.Summary,
		Location:        item.Location,
		Cancelled:       item.Status == "cancelled",
	}
	if item.Organizer != nil {
		event.Organizer = syncdomain.RawAddress{
			Name:    item.Organizer.DisplayName,
			Address: item.Organizer.Email,
		}
	}
	event.StartsAt = parseEventTime(item.Start)
	event.EndsAt = parseEventTime(item.End)
	return event
}

func parseEventTime(t *calendar.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse("2006-01-02", t.Date); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
