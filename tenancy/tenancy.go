// Package tenancy threads an explicit tenant identifier through EventStore
// and Repository calls, as an alternative to ambient/global tenant state.
package tenancy

import (
	"context"
)

type contextKey struct{}

// DefaultTenantID is substituted for a missing tenant when a Config's
// Strict mode is false.
const DefaultTenantID = "default"

// WithTenantID attaches a tenant id to ctx.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext returns the tenant id attached to ctx, and whether one was
// present.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(contextKey{}).(string)
	return v, ok && v != ""
}

// Config controls how a missing tenant id is resolved.
type Config struct {
	// Enabled turns on tenant scoping at all. When false, Resolve always
	// returns ("", nil) and callers should not filter by tenant.
	Enabled bool

	// Strict, when true, fails closed on a missing tenant id instead of
	// defaulting it.
	Strict bool
}

// ErrMissingTenant is returned by Resolve when Strict is enabled and no
// tenant id was supplied or found in ctx.
type ErrMissingTenant struct{}

func (ErrMissingTenant) Error() string { return "tenancy: tenant id required in strict mode" }

// Resolve determines the effective tenant id for an operation: an explicit
// argument wins, then the context, then (non-strict) DefaultTenantID.
func Resolve(ctx context.Context, cfg Config, explicit string) (string, error) {
	if !cfg.Enabled {
		return "", nil
	}
	if explicit != "" {
		return explicit, nil
	}
	if v, ok := FromContext(ctx); ok {
		return v, nil
	}
	if cfg.Strict {
		return "", ErrMissingTenant{}
	}
	return DefaultTenantID, nil
}
