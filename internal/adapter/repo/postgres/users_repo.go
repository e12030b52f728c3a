package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

// UserRepo persists seller accounts.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

// Create inserts a user with an explicit id.
func (r *UserRepo) Create(ctx domain.Context, id int64, isVerifiedSeller bool) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Create")
	defer span.End()
	q := `INSERT INTO users (id, is_verified_seller) VALUES ($1, $2) RETURNING id, is_verified_seller`
	row := r.Pool.QueryRow(ctx, q, id, isVerifiedSeller)
	var u domain.User
	if err := row.Scan(&u.ID, &u.IsVerifiedSeller); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("op=user.create: %w", domain.ErrAlreadyExists)
		}
		return domain.User{}, fmt.Errorf("op=user.create: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return u, nil
}
