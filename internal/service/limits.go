package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
)

const DefaultJobLimit = 6

// LimitPolicy resolves the per-technician daily job cap for a tenant.
// Concurrent lookups for the same tenant share one settings read.
type LimitPolicy struct {
	settings ports.TenantSettings
	def      int
	group    singleflight.Group
}

func NewLimitPolicy(settings ports.TenantSettings, defaultLimit int) *LimitPolicy {
	if defaultLimit <= 0 {
		defaultLimit = DefaultJobLimit
	}
	return &LimitPolicy{settings: settings, def: defaultLimit}
}

func (p *LimitPolicy) Default() int { return p.def }

// LimitFor returns the tenant override when one is set and positive,
// otherwise the default. Lookup failures are returned, not masked.
//
// The shared settings read runs detached from any one caller's context, so a
// cancelled request never fails the other callers waiting on the same tenant.
// Each caller still stops waiting when its own ctx is done.
func (p *LimitPolicy) LimitFor(ctx context.Context, tenantID string) (int, error) {
	if p.settings == nil || tenantID == "" {
		return p.def, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(tenantID, func() (any, error) {
		limit, ok, err := p.settings.JobLimitOverride(shared, tenantID)
		if err != nil {
			return 0, err
		}
		if !ok || limit <= 0 {
			return p.def, nil
		}
		return limit, nil
	})
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("job limit for tenant %s: %w", tenantID, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return 0, fmt.Errorf("job limit for tenant %s: %w", tenantID, r.Err)
		}
		return r.Val.(int), nil
	}
}

// CountsTowardLimit reports whether events of type t count against the cap.
func CountsTowardLimit(t models.EventType) bool {
	return t == models.EventJob
}
