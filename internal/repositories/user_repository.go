package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-realtime/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the read side of the user directory.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (models.User, error)
	BulkUsers(ctx context.Context, ids []string) ([]models.User, error)
	AreMutualFollowers(ctx context.Context, userID, otherID string) (bool, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, first_name, last_name, profile_img, created_at FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches the users that exist among ids. Unknown ids are skipped.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []string) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.SelectContext(ctx, &users, `SELECT id, username, first_name, last_name, profile_img, created_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}

// AreMutualFollowers reports whether both users follow each other.
func (r *UserRepo) AreMutualFollowers(ctx context.Context, userID, otherID string) (bool, error) {
	var mutual bool
	err := r.db.GetContext(ctx, &mutual, `SELECT
        EXISTS(SELECT 1 FROM follows WHERE follower_id = $1 AND following_id = $2)
        AND EXISTS(SELECT 1 FROM follows WHERE follower_id = $2 AND following_id = $1)`, userID, otherID)
	return mutual, err
}
