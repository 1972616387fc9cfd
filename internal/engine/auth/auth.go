// Package auth resolves caller permissions for lifecycle actions.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"insightline/internal/domain"
	"insightline/internal/engine"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Non-action permissions.
const (
	PermRead       = "insight.read"
	PermCreate     = "insight.create"
	PermEventsRead = "events.read"
	Wildcard       = "*"
)

// ActionPermission is the permission required to apply ev.
func ActionPermission(ev domain.Event) string {
	return "insight." + engine.ActionName(ev)
}

// Permissions lists every permission checked by the API.
func Permissions() []string {
	out := []string{PermRead, PermCreate, PermEventsRead}
	for _, ev := range domain.Events {
		out = append(out, ActionPermission(ev))
	}
	return out
}

// Principal is an authenticated caller.
type Principal struct {
	ActorID     string
	Roles       []string
	Permissions []string
	// Source names the credential that produced the principal (jwt, api_key, header).
	Source string
}

// Allows reports whether the principal holds perm directly or via a wildcard.
func (p Principal) Allows(perm string) bool {
	return Allowed(p.Permissions, perm)
}

// Allowed matches perm against granted, honoring "*" and "<prefix>.*".
func Allowed(granted []string, perm string) bool {
	for _, g := range granted {
		switch {
		case g == Wildcard, g == perm:
			return true
		case strings.HasSuffix(g, ".*") && strings.HasPrefix(perm, strings.TrimSuffix(g, "*")):
			return true
		}
	}
	return false
}

// RoleStore resolves roles to permissions.
type RoleStore interface {
	ActorRoles(ctx context.Context, actorID string) ([]string, error)
	RolePermissions(ctx context.Context, roles []string) ([]string, error)
}

// Service expands principals using stored role assignments.
type Service struct {
	Store RoleStore
}

// Resolve merges the actor's stored roles into p and expands all roles into permissions.
func (s Service) Resolve(ctx context.Context, p Principal) (Principal, error) {
	roles := append([]string(nil), p.Roles...)
	if s.Store != nil && p.ActorID != "" {
		stored, err := s.Store.ActorRoles(ctx, p.ActorID)
		if err != nil {
			return Principal{}, fmt.Errorf("load roles for %s: %w", p.ActorID, err)
		}
		roles = append(roles, stored...)
	}
	roles = dedupe(roles)
	perms := append([]string(nil), p.Permissions...)
	if s.Store != nil && len(roles) > 0 {
		granted, err := s.Store.RolePermissions(ctx, roles)
		if err != nil {
			return Principal{}, fmt.Errorf("load permissions: %w", err)
		}
		perms = append(perms, granted...)
	}
	p.Roles = roles
	p.Permissions = dedupe(perms)
	return p, nil
}

// Require returns ForbiddenError when p lacks perm.
func Require(p Principal, perm string) error {
	if p.Allows(perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
