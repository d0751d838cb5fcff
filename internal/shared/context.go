package shared

import "context"

type userContextKey struct{}

type companyContextKey struct{}

// ContextWithUser stores the authenticated user id.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext returns the authenticated user id, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userContextKey{}).(string)
	return id, ok && id != ""
}

// ContextWithCompany stores the tenant the request acts on.
func ContextWithCompany(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyContextKey{}, companyID)
}

// CompanyFromContext returns the tenant, if any.
func CompanyFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(companyContextKey{}).(string)
	return id, ok && id != ""
}

// CurrentUser resolves the user stamped into created_by.
type CurrentUser interface {
	UserID(ctx context.Context) (string, bool)
}

// ContextUser reads the user placed in the context by the auth middleware.
type ContextUser struct{}

// UserID implements CurrentUser.
func (ContextUser) UserID(ctx context.Context) (string, bool) {
	return UserFromContext(ctx)
}

// StaticUser always reports the same user.
type StaticUser string

// UserID implements CurrentUser.
func (u StaticUser) UserID(context.Context) (string, bool) {
	return string(u), u != ""
}

// ViewInvalidator drops cached read models for a company after writes.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, companyID string) error
}
