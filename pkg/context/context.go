// Package context carries the identifiers of an API call (request, project,
// route) through context.Context. They survive context.WithoutCancel, so a
// detached evaluation still logs and audits under the caller's request id.
package context

import "context"

type scopeKey struct{}

// Scope is everything the middleware learns about a request.
type Scope struct {
	RequestID string
	ProjectID string
	Method    string
	Route     string
	RemoteIP  string
}

func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the request scope, or the zero Scope outside a request.
func ScopeFrom(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeKey{}).(Scope)
	return scope
}

func update(ctx context.Context, fn func(*Scope)) context.Context {
	scope := ScopeFrom(ctx)
	fn(&scope)
	return WithScope(ctx, scope)
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return update(ctx, func(s *Scope) { s.RequestID = requestID })
}

func GetRequestID(ctx context.Context) string {
	return ScopeFrom(ctx).RequestID
}

func SetProjectID(ctx context.Context, projectID string) context.Context {
	return update(ctx, func(s *Scope) { s.ProjectID = projectID })
}

func GetProjectID(ctx context.Context) string {
	return ScopeFrom(ctx).ProjectID
}

func SetRoute(ctx context.Context, route string) context.Context {
	return update(ctx, func(s *Scope) { s.Route = route })
}

func GetRoute(ctx context.Context) string {
	return ScopeFrom(ctx).Route
}
