// Package rbac resolves user permissions and guards routes.
package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// Service looks up permissions through the user_permissions function.
type Service struct {
	db store.Database
}

// NewService constructs Service.
func NewService(db store.Database) *Service {
	return &Service{db: db}
}

// EffectivePermissions returns the permissions granted to the user via roles.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	raw, err := s.db.RPC(ctx, "user_permissions", store.Record{"user_id": userID})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rbac: user permissions: %w", err)
	}
	return toStrings(raw)
}

// HasPermission reports whether the user holds perm or the admin permission.
func (s *Service) HasPermission(ctx context.Context, userID, perm string) (bool, error) {
	granted, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return hasAnyPermission(granted, normalizePermissions([]string{perm, shared.PermAdmin})), nil
}

func toStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("rbac: unexpected permission %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return strings.Split(v, ","), nil
	default:
		return nil, fmt.Errorf("rbac: unexpected permissions payload %T", raw)
	}
}
