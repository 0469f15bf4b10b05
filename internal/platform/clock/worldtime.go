package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WorldTimeAPI fetches the current time for a zone from a worldtimeapi.org
// compatible endpoint: GET {baseURL}/{zone} returning {"datetime": "<RFC3339>"}.
//
// The offset between the remote answer and the local clock is kept for
// syncTTL, so steady traffic does not hit the network on every call.
type WorldTimeAPI struct {
	baseURL string
	loc     *time.Location
	client  *http.Client
	syncTTL time.Duration
	local   func() time.Time

	mu       sync.Mutex
	skew     time.Duration
	syncedAt time.Time
}

type worldTimeResponse struct {
	Datetime string `json:"datetime"`
	Timezone string `json:"timezone"`
}

func NewWorldTimeAPI(baseURL string, loc *time.Location, timeout, syncTTL time.Duration) *WorldTimeAPI {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &WorldTimeAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		loc:     loc,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		syncTTL: syncTTL,
		local:   time.Now,
	}
}

func (w *WorldTimeAPI) Now(ctx context.Context) (time.Time, error) {
	w.mu.Lock()
	if w.syncTTL > 0 && !w.syncedAt.IsZero() && w.local().Sub(w.syncedAt) < w.syncTTL {
		now := w.local().Add(w.skew).In(w.loc)
		w.mu.Unlock()
		return now, nil
	}
	w.mu.Unlock()

	remote, err := w.fetch(ctx)
	if err != nil {
		return time.Time{}, err
	}

	w.mu.Lock()
	localNow := w.local()
	w.skew = remote.Sub(localNow)
	w.syncedAt = localNow
	w.mu.Unlock()

	return remote.In(w.loc), nil
}

func (w *WorldTimeAPI) fetch(ctx context.Context) (time.Time, error) {
	url := w.baseURL + "/" + w.loc.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: GET %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("%w: time service returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var body worldTimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	t, err := time.Parse(time.RFC3339Nano, body.Datetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse datetime %q: %v", ErrUnavailable, body.Datetime, err)
	}
	return t, nil
}
