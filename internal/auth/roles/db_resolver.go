package roles

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/db"
)

// DBResolver resolves roles from the platform's user_profiles table.
// A user without a profile row is an ordinary user, not an error.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	userID string,
) (auth.Role, error) {

	if userID == "" {
		return auth.RoleUser, errors.New("user id is empty")
	}

	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT role
		FROM public.user_profiles
		WHERE user_id = $1
	`,
		userID,
	).Scan(&role)

	if err == sql.ErrNoRows {
		return auth.RoleUser, nil
	}
	if err != nil {
		return auth.RoleUser, err
	}

	return auth.ParseRole(role), nil
}
