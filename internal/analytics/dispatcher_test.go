package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []Event
	err    error
	panic  bool
	block  bool
}

func (r *recordingTracker) Track(ctx context.Context, ev Event) error {
	if r.panic {
		panic("tracker exploded")
	}
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestDispatcherEnrichesAndTracks(t *testing.T) {
	tracker := &recordingTracker{}
	d := NewDispatcher(tracker, time.Second, nil)

	d.Dispatch(Event{ID: "1", Site: "demo"}, func(_ context.Context, ev *Event) error {
		ev.Plan = "pro"
		return nil
	})
	d.Wait()

	require.Len(t, tracker.events, 1)
	assert.Equal(t, "pro", tracker.events[0].Plan)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cases := []*recordingTracker{
		{err: errors.New("boom")},
		{panic: true},
		{block: true},
	}
	for _, tracker := range cases {
		hook.Reset()
		d := NewDispatcher(tracker, 20*time.Millisecond, logger)
		d.Dispatch(Event{ID: "x", Site: "demo"}, nil)
		d.Wait()

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "analytics_dispatch_failed", entry.Message)
	}
}

func TestDispatcherDoesNotBlockCaller(t *testing.T) {
	tracker := &recordingTracker{block: true}
	d := NewDispatcher(tracker, 200*time.Millisecond, nil)

	started := time.Now()
	d.Dispatch(Event{ID: "slow"}, nil)
	assert.Less(t, time.Since(started), 50*time.Millisecond)
	d.Wait()
}

func TestHTTPTrackerPostsJSON(t *testing.T) {
	var got Event
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer endpoint.Close()

	tracker := NewTracker(endpoint.URL, endpoint.Client())
	err := tracker.Track(context.Background(), Event{ID: "42", Site: "demo", Status: 200})
	require.NoError(t, err)
	assert.Equal(t, "42", got.ID)
	assert.Equal(t, "demo", got.Site)
}

func TestHTTPTrackerReportsErrorStatus(t *testing.T) {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer endpoint.Close()

	err := NewTracker(endpoint.URL, endpoint.Client()).Track(context.Background(), Event{})
	assert.Error(t, err)
}

func TestNewTrackerWithoutEndpointIsNop(t *testing.T) {
	_, ok := NewTracker("", nil).(NopTracker)
	assert.True(t, ok)
}
