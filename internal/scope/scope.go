// internal/scope/scope.go
//
// Explicit per-request identity.
//
// Context
// -------
// Every persistence call takes a Scope argument carrying the tenant and
// user the request acts for.  The HTTP edge builds one Scope per request
// and stores it in the request context; handlers pull it back out and
// hand it to the engine explicitly.
//
// Usage
// -----
//
//	sc := scope.New("t-42", "u-7")
//	ctx = scope.WithScope(ctx, sc)
//
//	// downstream
//	sc, ok := scope.FromContext(ctx)
//	rec, err := engine.Get(ctx, sc, id)
//
// Notes
// -----
// • Scope is a value; copy it freely.  Nothing in it changes mid-request.
// • Ids are opaque strings.  Numeric tenants are formatted by the caller.
// • Oxford commas, two spaces after periods.
package scope

import "context"

// Scope is the (tenant, user) pair a request acts for.  Either may be
// empty.
type Scope struct {
	TenantID string
	UserID   string
}

// New returns a Scope for tenantID and userID.
func New(tenantID, userID string) Scope {
	return Scope{TenantID: tenantID, UserID: userID}
}

// Tenant returns the tenant id and whether one is present.
func (s Scope) Tenant() (string, bool) { return s.TenantID, s.TenantID != "" }

// User returns the user id and whether one is present.
func (s Scope) User() (string, bool) { return s.UserID, s.UserID != "" }

// scopeKey is unexported to avoid context-key collisions.
type scopeKey struct{}

// WithScope returns a new context carrying sc.
func WithScope(ctx context.Context, sc Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

// FromContext extracts the Scope from ctx.  It returns (Scope{}, false) if
// none is set.
func FromContext(ctx context.Context) (Scope, bool) {
	sc, ok := ctx.Value(scopeKey{}).(Scope)
	return sc, ok
}
