package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/models"
)

type fakeChannel struct {
	name     string
	err      error
	status   string
	delay    time.Duration
	mu       sync.Mutex
	messages []string
	order    *[]string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, recipientID, message string, data map[string]any) (Delivery, error) {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Delivery{}, f.err
	}
	status := f.status
	if status == "" {
		status = models.AttemptDelivered
	}
	return Delivery{Status: status}, nil
}

func (f *fakeChannel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakePrefs map[string]models.RecipientPreferences

func (f fakePrefs) GetPreferences(_ context.Context, userID string) (models.RecipientPreferences, error) {
	p, ok := f[userID]
	if !ok {
		return models.RecipientPreferences{}, apperr.NotFound("preferences", userID)
	}
	return p, nil
}

func newTestEscalator(prefs fakePrefs, cfg Config, channels ...Channel) *Escalator {
	return NewEscalator(prefs, channels, cfg, zerolog.Nop(), nil)
}

func TestEscalateStopsAtFirstSuccess(t *testing.T) {
	var order []string
	sms := &fakeChannel{name: "sms", err: errors.New("gateway down"), order: &order}
	push := &fakeChannel{name: "push", order: &order}
	call := &fakeChannel{name: "call", order: &order}
	prefs := fakePrefs{"sup-1": {UserID: "sup-1", Channels: []string{"sms", "push", "call"}}}

	res := newTestEscalator(prefs, Config{}, sms, push, call).
		Escalate(context.Background(), "sup-1", models.Notification{Type: "kit_override", Message: "hello"})

	require.True(t, res.Delivered())
	assert.Equal(t, StateDelivered, res.Outcome)
	assert.Equal(t, "push", res.Method)
	assert.Equal(t, models.AttemptDelivered, res.Status)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, models.AttemptFailed, res.Attempts[0].Status)
	assert.Equal(t, "sms", res.Attempts[0].Method)
	assert.Contains(t, res.Attempts[0].Error, "gateway down")
	assert.Equal(t, models.AttemptDelivered, res.Attempts[1].Status)
	assert.Equal(t, []string{"sms", "push"}, order)
	assert.Zero(t, call.calls())
}

func TestEscalateExhaustsAllChannels(t *testing.T) {
	sms := &fakeChannel{name: "sms", err: errors.New("no signal")}
	push := &fakeChannel{name: "push", status: "rejected"}
	call := &fakeChannel{name: "call", err: errors.New("busy")}

	res := newTestEscalator(nil, Config{}, sms, push, call).
		Escalate(context.Background(), "sup-1", models.Notification{Message: "hello"})

	assert.False(t, res.Delivered())
	assert.Equal(t, StateExhausted, res.Outcome)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, "call", res.Method)
	assert.Equal(t, models.AttemptFailed, res.Status)
	assert.Equal(t, "channel reported status rejected", res.Attempts[1].Error)
}

func TestEscalateUsesDefaultOrderWithoutPreferences(t *testing.T) {
	var order []string
	sms := &fakeChannel{name: "sms", err: errors.New("x"), order: &order}
	push := &fakeChannel{name: "push", err: errors.New("x"), order: &order}
	call := &fakeChannel{name: "call", order: &order}

	res := newTestEscalator(fakePrefs{}, Config{DefaultOrder: []string{"call", "push", "sms"}}, sms, push, call).
		Escalate(context.Background(), "unknown", models.Notification{Message: "m"})

	assert.True(t, res.Delivered())
	assert.Equal(t, []string{"call"}, order)
}

func TestEscalateRecordsUnconfiguredChannel(t *testing.T) {
	push := &fakeChannel{name: "push"}
	prefs := fakePrefs{"u": {Channels: []string{"SMS", "push", "push"}}}

	res := newTestEscalator(prefs, Config{}, push).Escalate(context.Background(), "u", models.Notification{})

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "sms", res.Attempts[0].Method)
	assert.Equal(t, "channel not configured", res.Attempts[0].Error)
	assert.Equal(t, "push", res.Method)
}

func TestEscalateAttemptTimeoutMovesOn(t *testing.T) {
	slow := &fakeChannel{name: "sms", delay: time.Second}
	push := &fakeChannel{name: "push"}

	res := newTestEscalator(nil, Config{AttemptTimeout: 20 * time.Millisecond}, slow, push).
		Escalate(context.Background(), "u", models.Notification{})

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, models.AttemptFailed, res.Attempts[0].Status)
	assert.Equal(t, "attempt timed out after 20ms", res.Attempts[0].Error)
	assert.Equal(t, "push", res.Method)
}

// stubbornChannel ignores ctx and tracks how many sends are in flight across
// every channel sharing the same counter.
type stubbornChannel struct {
	name     string
	delay    time.Duration
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
}

func (s stubbornChannel) Name() string { return s.name }

func (s stubbornChannel) Send(ctx context.Context, recipientID, message string, data map[string]any) (Delivery, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return Delivery{Status: models.AttemptDelivered}, nil
}

func TestEscalateNeverOverlapsAttempts(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	slow := stubbornChannel{name: "sms", delay: 80 * time.Millisecond, inFlight: &inFlight, maxSeen: &maxSeen}
	push := stubbornChannel{name: "push", delay: time.Millisecond, inFlight: &inFlight, maxSeen: &maxSeen}

	res := newTestEscalator(fakePrefs{"u": {Channels: []string{"sms", "push"}}}, Config{AttemptTimeout: 10 * time.Millisecond}, slow, push).
		Escalate(context.Background(), "u", models.Notification{})

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, models.AttemptFailed, res.Attempts[0].Status)
	assert.Equal(t, "push", res.Method)
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestEscalateIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	push := &fakeChannel{name: "push", delay: 5 * time.Millisecond}

	res := newTestEscalator(fakePrefs{"u": {Channels: []string{"push"}}}, Config{}, push).
		Escalate(ctx, "u", models.Notification{})

	assert.True(t, res.Delivered())
}

func TestEscalateMeasuresLatency(t *testing.T) {
	push := &fakeChannel{name: "push"}
	e := newTestEscalator(fakePrefs{"u": {Channels: []string{"push"}}}, Config{}, push)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ticks := 0
	e.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	res := e.Escalate(context.Background(), "u", models.Notification{})

	assert.True(t, res.Delivered())
	assert.Equal(t, int64(2000), res.LatencyMs())
}

func TestEscalateWithNoChannelsIsExhausted(t *testing.T) {
	res := newTestEscalator(fakePrefs{"u": {Channels: []string{" "}}}, Config{}).
		Escalate(context.Background(), "u", models.Notification{})

	assert.Equal(t, StateExhausted, res.Outcome)
	assert.Empty(t, res.Attempts)
	assert.Equal(t, models.AttemptFailed, res.Status)
}

func TestQuietHoursSkipCallUnlessUrgent(t *testing.T) {
	var order []string
	sms := &fakeChannel{name: "sms", err: errors.New("x"), order: &order}
	call := &fakeChannel{name: "call", order: &order}
	prefs := fakePrefs{"u": {
		Channels:   []string{"sms", "call"},
		QuietHours: &models.QuietHours{Start: "22:00", End: "06:00"},
	}}
	e := newTestEscalator(prefs, Config{}, sms, call)
	e.now = func() time.Time { return time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC) }

	res := e.Escalate(context.Background(), "u", models.Notification{Priority: models.PriorityMedium})
	assert.Equal(t, StateExhausted, res.Outcome)
	assert.Equal(t, []string{"sms"}, order)

	order = nil
	res = e.Escalate(context.Background(), "u", models.Notification{Priority: models.PriorityHigh})
	assert.True(t, res.Delivered())
	assert.Equal(t, []string{"sms", "call"}, order)
}

func TestInQuietHours(t *testing.T) {
	tests := map[string]struct {
		q    *models.QuietHours
		at   string
		want bool
	}{
		"nil window":       {q: nil, at: "23:00", want: false},
		"same day inside":  {q: &models.QuietHours{Start: "12:00", End: "13:00"}, at: "12:30", want: true},
		"same day outside": {q: &models.QuietHours{Start: "12:00", End: "13:00"}, at: "13:00", want: false},
		"wrap late":        {q: &models.QuietHours{Start: "22:00", End: "06:00"}, at: "23:59", want: true},
		"wrap early":       {q: &models.QuietHours{Start: "22:00", End: "06:00"}, at: "05:59", want: true},
		"wrap outside":     {q: &models.QuietHours{Start: "22:00", End: "06:00"}, at: "06:00", want: false},
		"malformed":        {q: &models.QuietHours{Start: "late", End: "06:00"}, at: "23:00", want: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			at, err := time.Parse("15:04", tc.at)
			require.NoError(t, err)
			now := time.Date(2026, 3, 2, at.Hour(), at.Minute(), 0, 0, time.UTC)
			assert.Equal(t, tc.want, inQuietHours(tc.q, now))
		})
	}
}
