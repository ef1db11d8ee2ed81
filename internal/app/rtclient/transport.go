/*
This file defines the presence transports. The realtime socket is the primary
path; when the socket is down the adapter degrades to polling the presence
endpoint over plain HTTP, so presence queries keep answering during outages.
*/
package rtclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ripplechat/internal/app/realtime"
)

// PresenceTransport answers point-in-time presence queries for a set of users.
type PresenceTransport interface {
	RequestStatus(ctx context.Context, userIDs []string) (map[string]realtime.UserStatus, error)
}

// HTTPPresence is the degraded presence transport: it queries the REST
// presence endpoint instead of the realtime socket.
type HTTPPresence struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// Token is the bearer identity token.
	Token string

	// Client is the HTTP client; a timeout-bounded default is used when nil.
	Client *http.Client
}

// statusResponse mirrors the JSON envelope of the presence endpoint.
type statusResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Data    []realtime.UserStatus `json:"data"`
}

// RequestStatus fetches presence for the users via GET /api/presence/status.
func (h *HTTPPresence) RequestStatus(ctx context.Context, userIDs []string) (map[string]realtime.UserStatus, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	endpoint := fmt.Sprintf("%s/api/presence/status?ids=%s",
		strings.TrimRight(h.BaseURL, "/"),
		url.QueryEscape(strings.Join(userIDs, ",")),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("presence poll: unexpected status %d", res.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, err
	}

	statuses := make(map[string]realtime.UserStatus, len(body.Data))
	for _, status := range body.Data {
		statuses[status.UserID] = status
	}
	return statuses, nil
}

// backoffDelay returns the reconnect delay for the given attempt: doubling
// from min, capped at max. Attempt 0 is the first retry.
func backoffDelay(attempt int, min, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := min
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
