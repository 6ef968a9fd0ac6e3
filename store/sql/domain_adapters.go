package sqlstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-engage/core"
	"github.com/google/uuid"
)

func notificationToRecord(notification core.Notification) (*notificationRecord, error) {
	record := &notificationRecord{
		ID:             uuid.NewString(),
		NotificationID: strings.TrimSpace(notification.ID),
		Kind:           string(notification.Kind),
		Scope:          string(notification.Scope()),
		ScopeID:        strings.TrimSpace(notification.ScopeID),
		Sequence:       int64(notification.Sequence),
		Provider:       string(notification.Provider),
		Terminal:       notification.Kind.Terminal(),
		OccurredAt:     notification.OccurredAt.UTC(),
	}
	if record.NotificationID == "" {
		record.NotificationID = record.ID
	}
	if notification.AuthInfo != nil {
		encoded, err := json.Marshal(notification.AuthInfo)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: encode auth info: %w", err)
		}
		record.AuthInfo = string(encoded)
	}
	if notification.Activity != nil {
		encoded, err := json.Marshal(notification.Activity)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: encode activity: %w", err)
		}
		record.Activity = string(encoded)
	}
	if notification.TokenURL != nil {
		payload := tokenURLPayload{URL: notification.TokenURL.URL, Payload: notification.TokenURL.Payload}
		for _, name := range notification.TokenURL.Headers.Names() {
			payload.Headers = append(payload.Headers, headerPayload{
				Name:   name,
				Values: notification.TokenURL.Headers.Values(name),
			})
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: encode token url result: %w", err)
		}
		record.TokenURL = string(encoded)
	}
	if notification.Error != nil {
		encoded, err := json.Marshal(errorPayload{
			Kind:     string(notification.Error.Kind),
			Code:     notification.Error.Code,
			Message:  notification.Error.Message,
			Provider: string(notification.Error.Provider),
		})
		if err != nil {
			return nil, fmt.Errorf("sqlstore: encode error: %w", err)
		}
		record.Error = string(encoded)
	}
	return record, nil
}

func (r *notificationRecord) toDomain() (core.Notification, error) {
	if r == nil {
		return core.Notification{}, nil
	}
	out := core.Notification{
		ID:         r.NotificationID,
		Kind:       core.NotificationKind(r.Kind),
		ScopeID:    r.ScopeID,
		Sequence:   uint64(r.Sequence),
		Provider:   core.Provider(r.Provider),
		OccurredAt: r.OccurredAt.UTC(),
	}
	if r.AuthInfo != "" {
		info, err := core.ParseAuthInfo([]byte(r.AuthInfo))
		if err != nil {
			return core.Notification{}, fmt.Errorf("sqlstore: decode auth info for %s: %w", r.NotificationID, err)
		}
		out.AuthInfo = &info
	}
	if r.Activity != "" {
		var activity core.Activity
		if err := json.Unmarshal([]byte(r.Activity), &activity); err != nil {
			return core.Notification{}, fmt.Errorf("sqlstore: decode activity for %s: %w", r.NotificationID, err)
		}
		out.Activity = &activity
	}
	if r.TokenURL != "" {
		var payload tokenURLPayload
		if err := json.Unmarshal([]byte(r.TokenURL), &payload); err != nil {
			return core.Notification{}, fmt.Errorf("sqlstore: decode token url result for %s: %w", r.NotificationID, err)
		}
		headers := core.NewResponseHeaders()
		for _, header := range payload.Headers {
			for _, value := range header.Values {
				headers.Add(header.Name, value)
			}
		}
		out.TokenURL = &core.TokenURLResult{URL: payload.URL, Headers: headers, Payload: payload.Payload}
	}
	if r.Error != "" {
		var payload errorPayload
		if err := json.Unmarshal([]byte(r.Error), &payload); err != nil {
			return core.Notification{}, fmt.Errorf("sqlstore: decode error for %s: %w", r.NotificationID, err)
		}
		out.Error = &core.EngageError{
			Kind:     core.ErrorKind(payload.Kind),
			Code:     payload.Code,
			Message:  payload.Message,
			Provider: core.Provider(payload.Provider),
		}
	}
	return out, nil
}

// cloneNotification deep copies the payloads a caller could mutate. Errors
// are immutable and shared.
func cloneNotification(notification core.Notification) core.Notification {
	out := notification
	if notification.AuthInfo != nil {
		info := notification.AuthInfo.Clone()
		out.AuthInfo = &info
	}
	if notification.Activity != nil {
		activity := notification.Activity.Clone()
		out.Activity = &activity
	}
	if notification.TokenURL != nil {
		out.TokenURL = &core.TokenURLResult{
			URL:     notification.TokenURL.URL,
			Headers: notification.TokenURL.Headers.Clone(),
			Payload: notification.TokenURL.Payload,
		}
	}
	return out
}
