// Package users implements discovery of other users for collaboration.
package users

import (
	"context"
	"fmt"
	"strings"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// ConnectionViews summarizes the viewer's connection with each user.
type ConnectionViews interface {
	ViewsFor(ctx context.Context, viewer int, others []int) (map[int]models.ConnectionView, error)
}

// PresenceReader reads presence in bulk.
type PresenceReader interface {
	BulkGet(ctx context.Context, userIDs []int) (map[int]models.UserPresence, error)
}

type Service struct {
	profiles    repositories.ProfileRepository
	connections ConnectionViews
	presence    PresenceReader
}

func NewService(profiles repositories.ProfileRepository, connections ConnectionViews, presence PresenceReader) *Service {
	return &Service{profiles: profiles, connections: connections, presence: presence}
}

// Search finds users by username or display name, annotated for viewer.
func (s *Service) Search(ctx context.Context, viewer int, query string, limit int) ([]models.UserForCollaboration, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "search query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	profiles, err := s.profiles.SearchProfiles(ctx, query, viewer, limit)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	out := make([]models.UserForCollaboration, 0, len(profiles))
	if len(profiles) == 0 {
		return out, nil
	}

	ids := make([]int, len(profiles))
	for i, p := range profiles {
		ids[i] = p.UserID
	}
	views, err := s.connections.ViewsFor(ctx, viewer, ids)
	if err != nil {
		return nil, err
	}
	presence, err := s.presence.BulkGet(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		view := views[p.UserID]
		pres, ok := presence[p.UserID]
		if !ok {
			pres = models.Offline(p.UserID)
		}
		user := models.UserForCollaboration{
			Profile:          p,
			ConnectionStatus: view.Status,
			ConnectionID:     view.ConnectionID,
			PresenceStatus:   pres.Status,
		}
		if !pres.LastSeen.IsZero() {
			seen := pres.LastSeen
			user.LastSeen = &seen
		}
		out = append(out, user)
	}
	return out, nil
}
