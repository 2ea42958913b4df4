package repositories

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"collab-service/internal/models"
)

// ProfileRepository reads the profile mirror owned by the profile service.
type ProfileRepository interface {
	BulkProfiles(ctx context.Context, userIDs []int) ([]models.Profile, error)
	SearchProfiles(ctx context.Context, query string, excludeID int, limit int) ([]models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// BulkProfiles fetches the profiles of the given users in one query.
func (r *ProfileRepo) BulkProfiles(ctx context.Context, userIDs []int) ([]models.Profile, error) {
	if len(userIDs) == 0 {
		return []models.Profile{}, nil
	}
	var profiles []models.Profile
	err := r.db.SelectContext(ctx, &profiles, `SELECT user_id, username, display_name, photo_url, bio
        FROM profiles WHERE user_id = ANY($1)`, pq.Array(userIDs))
	return profiles, err
}

// SearchProfiles matches username or display name, excluding the searching user.
func (r *ProfileRepo) SearchProfiles(ctx context.Context, query string, excludeID int, limit int) ([]models.Profile, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	var profiles []models.Profile
	err := r.db.SelectContext(ctx, &profiles, `SELECT user_id, username, display_name, photo_url, bio
        FROM profiles
        WHERE user_id <> $2 AND (username ILIKE $1 OR display_name ILIKE $1)
        ORDER BY display_name, user_id
        LIMIT $3`, pattern, excludeID, limit)
	return profiles, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
