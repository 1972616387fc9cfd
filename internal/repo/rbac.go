package repo

import (
	"context"
	"database/sql"
	"sort"
)

// SyncRoles replaces the stored role catalog with roles (role id to permissions).
// Actor assignments to roles that no longer exist are dropped by cascade.
func (r Repo) SyncRoles(ctx context.Context, roles map[string][]string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := queryStrings(ctx, tx, `SELECT id FROM roles`)
	if err != nil {
		return err
	}
	for _, id := range existing {
		if _, ok := roles[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id=?`, id); err != nil {
			return err
		}
	}
	for id, perms := range roles {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, description) VALUES (?,?)`, id, nil); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id=?`, id); err != nil {
			return err
		}
		for _, p := range perms {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id, permission_id) VALUES (?,?)`, id, p); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (r Repo) AssignRole(ctx context.Context, actorID, roleID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role_id) VALUES (?,?)`, actorID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, actorID, roleID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID)
	return err
}

func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	return queryStrings(ctx, r.DB, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID)
}

// RolePermissions returns the distinct permissions granted by any of roles.
func (r Repo) RolePermissions(ctx context.Context, roles []string) ([]string, error) {
	seen := map[string]struct{}{}
	for _, role := range roles {
		perms, err := queryStrings(ctx, r.DB, `SELECT permission_id FROM role_permissions WHERE role_id=?`, role)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
