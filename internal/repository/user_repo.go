package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub/internal/model"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// DisplayNames resolves ids in one round trip. Unknown ids are absent from the map.
func (r *UserRepository) DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	query := `SELECT id, display_name FROM users WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

type MembershipRepository struct {
	db *pgxpool.Pool
}

func NewMembershipRepository(db *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// GetMembership returns model.ErrNotMember when the user is not in the group.
func (r *MembershipRepository) GetMembership(ctx context.Context, groupID, userID int64) (model.Membership, error) {
	query := `
        SELECT group_id, user_id, role
        FROM group_memberships
        WHERE group_id = $1 AND user_id = $2
    `
	var m model.Membership
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Membership{}, fmt.Errorf("user %d in group %d: %w", userID, groupID, model.ErrNotMember)
		}
		return model.Membership{}, err
	}
	return m, nil
}

// ListMembers returns the current roster, read fresh on every call.
func (r *MembershipRepository) ListMembers(ctx context.Context, groupID int64) ([]model.Membership, error) {
	query := `
        SELECT group_id, user_id, role
        FROM group_memberships
        WHERE group_id = $1
        ORDER BY user_id
    `
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
