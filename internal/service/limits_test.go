package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tophand/backend/internal/models"
)

type stubSettings struct {
	limit int
	ok    bool
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubSettings) JobLimitOverride(ctx context.Context, tenantID string) (int, bool, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
	return s.limit, s.ok, s.err
}

func TestLimitForResolution(t *testing.T) {
	tests := map[string]struct {
		settings *stubSettings
		tenant   string
		want     int
		wantErr  bool
	}{
		"no settings":  {settings: nil, tenant: "t1", want: DefaultJobLimit},
		"no override":  {settings: &stubSettings{}, tenant: "t1", want: DefaultJobLimit},
		"override":     {settings: &stubSettings{limit: 8, ok: true}, tenant: "t1", want: 8},
		"non-positive": {settings: &stubSettings{limit: 0, ok: true}, tenant: "t1", want: DefaultJobLimit},
		"empty tenant": {settings: &stubSettings{limit: 8, ok: true}, tenant: "", want: DefaultJobLimit},
		"lookup error": {settings: &stubSettings{err: errors.New("db down")}, tenant: "t1", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var p *LimitPolicy
			if tc.settings == nil {
				p = NewLimitPolicy(nil, 0)
			} else {
				p = NewLimitPolicy(tc.settings, 0)
			}
			got, err := p.LimitFor(context.Background(), tc.tenant)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLimitForCollapsesConcurrentLookups(t *testing.T) {
	s := &stubSettings{limit: 4, ok: true, delay: 20 * time.Millisecond}
	p := NewLimitPolicy(s, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.LimitFor(context.Background(), "t1")
			assert.NoError(t, err)
			assert.Equal(t, 4, got)
		}()
	}
	wg.Wait()
	assert.Less(t, int(s.calls.Load()), 10)
}

func TestLimitForCancelledCallerDoesNotFailOthers(t *testing.T) {
	s := &stubSettings{limit: 4, ok: true, delay: 60 * time.Millisecond}
	p := NewLimitPolicy(s, 0)

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var (
		wg       sync.WaitGroup
		shortErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, shortErr = p.LimitFor(short, "tenant-a")
	}()
	time.Sleep(2 * time.Millisecond)

	got, err := p.LimitFor(context.Background(), "tenant-a")
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.ErrorIs(t, shortErr, context.DeadlineExceeded)
}

func TestCountsTowardLimit(t *testing.T) {
	assert.True(t, CountsTowardLimit(models.EventJob))
	assert.False(t, CountsTowardLimit(models.EventBreak))
	assert.False(t, CountsTowardLimit(models.EventTravel))
}
