package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veritasgrid/triagecore/internal/domain"
	"github.com/veritasgrid/triagecore/pkg/repo"
)

// userColumns mirrors the order bindUser returns, since pkg/repo's
// generic Create/Update rely on positional alignment between Columns and
// Bind rather than named arguments.
var userColumns = []string{"id", "role", "verified"}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Role, &u.Verified); err != nil {
		return domain.User{}, mapErr(err)
	}
	return u, nil
}

func bindUser(u domain.User) []any {
	return []any{u.ID, u.Role, u.Verified}
}

// userRepo builds the generic pkg/repo.Repository[domain.User, string]
// over the users table. Users are genuinely single-table CRUD, unlike
// CrawledItem/ReviewQueueEntry whose multi-table writes need explicit
// transactions the generic seam doesn't model.
func (s *Store) userRepo() *repo.PostgresRepo[domain.User, string] {
	return repo.NewPostgresRepo[domain.User, string](s.pool, repo.PostgresRepoOpts[domain.User, string]{
		Table:   "users",
		Columns: userColumns,
		Scan:    scanUser,
		Bind:    bindUser,
	})
}

// GetUser loads a user by id, used by the HTTP facade to resolve the role
// and verified status behind a request's bearer token.
func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := s.userRepo().Get(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("store: load user %s: %w", id, mapErr(err))
	}
	return u, nil
}

// UpsertUser implements first-seen-wins provisioning: a reviewer or admin
// account is created on first authenticated request and its role updated
// on any subsequent change coming from the identity provider. This stays
// bespoke SQL rather than repo.Create/Update because upsert-on-conflict
// semantics aren't part of the generic Repository contract.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, role, verified)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, verified = EXCLUDED.verified`,
		u.ID, u.Role, u.Verified)
	if err != nil {
		return domain.User{}, fmt.Errorf("store: upsert user %s: %w", u.ID, err)
	}
	return u, nil
}

// ListByRole returns up to 10,000 users with the given role.
func (s *Store) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	out, err := s.userRepo().List(ctx, repo.ListOpts{
		Filter: map[string]any{"role": role},
		Limit:  10_000,
	})
	if err != nil {
		return nil, fmt.Errorf("store: list users by role %s: %w", role, err)
	}
	return out, nil
}
