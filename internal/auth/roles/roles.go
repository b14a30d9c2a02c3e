package roles

import (
	"context"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/auth"
)

// Resolver maps a user id to its platform role. Resolution happens
// after a session is adopted and must never gate it; callers fall
// back to auth.RoleUser on any failure.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (auth.Role, error)
}
