// Package connections implements the connection request state machine that gates who may message whom.
package connections

import (
	"context"
	"errors"
	"fmt"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
	"collab-service/internal/observability"
	"collab-service/internal/repositories"
)

// Auditor records domain actions.
type Auditor interface {
	Action(ctx context.Context, action string, actorID int, attrs map[string]any)
}

// Service owns connection transitions.
type Service struct {
	repo  repositories.ConnectionRepository
	audit Auditor
}

// NewService builds a Service. audit may be nil.
func NewService(repo repositories.ConnectionRepository, audit Auditor) *Service {
	return &Service{repo: repo, audit: audit}
}

// SendRequest creates or resets the caller's request to target for connType.
func (s *Service) SendRequest(ctx context.Context, caller, target int, connType models.ConnectionType) (models.Connection, error) {
	if connType == "" {
		connType = models.ConnectionFriend
	}
	if !connType.Valid() {
		return models.Connection{}, apperr.New(apperr.KindInvalidArgument, "unknown connection type %q", connType)
	}
	if caller <= 0 || target <= 0 {
		return models.Connection{}, apperr.New(apperr.KindInvalidArgument, "invalid user id")
	}
	if caller == target {
		return models.Connection{}, apperr.New(apperr.KindInvalidArgument, "cannot connect with yourself")
	}

	from := "none"
	guard := func(existing []models.Connection) error {
		from = "none"
		for _, rec := range existing {
			if rec.State == models.StateBlocked {
				return apperr.ErrBlocked
			}
		}
		for _, rec := range existing {
			if rec.Type != connType {
				continue
			}
			switch rec.State {
			case models.StateAccepted:
				return apperr.ErrAlreadyConnected
			case models.StatePending:
				return apperr.ErrAlreadyPending
			}
			from = string(rec.State)
		}
		return nil
	}

	conn, err := s.repo.RequestConnection(ctx, caller, target, connType, guard)
	if err != nil {
		var typed *apperr.Error
		if errors.As(err, &typed) {
			return models.Connection{}, err
		}
		return models.Connection{}, fmt.Errorf("send connection request: %w", err)
	}

	s.record(ctx, caller, conn, from, "connection.requested")
	return conn, nil
}

// Respond applies the addressee's decision to a pending request.
// Accepting an already accepted record succeeds without change.
func (s *Service) Respond(ctx context.Context, caller, connectionID int, decision models.ConnectionState) (models.Connection, error) {
	switch decision {
	case models.StateAccepted, models.StateDeclined, models.StateBlocked:
	default:
		return models.Connection{}, apperr.New(apperr.KindInvalidTransition, "cannot respond with %q", decision)
	}

	conn, err := s.participantRecord(ctx, caller, connectionID)
	if err != nil {
		return models.Connection{}, err
	}
	if conn.RequesterID == caller {
		return models.Connection{}, apperr.New(apperr.KindUnauthorized, "only the addressee can respond")
	}
	if conn.State == models.StateAccepted && decision == models.StateAccepted {
		return conn, nil
	}
	if conn.State != models.StatePending {
		return models.Connection{}, apperr.New(apperr.KindInvalidTransition, "connection is %s", conn.State)
	}

	updated, err := s.repo.TransitionConnection(ctx, connectionID, models.StatePending, decision)
	if errors.Is(err, repositories.ErrStaleState) {
		current, getErr := s.repo.GetConnection(ctx, connectionID)
		if getErr != nil {
			return models.Connection{}, fmt.Errorf("respond to connection: %w", getErr)
		}
		if current.State == models.StateAccepted && decision == models.StateAccepted {
			return current, nil
		}
		return models.Connection{}, apperr.New(apperr.KindInvalidTransition, "connection is %s", current.State)
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("respond to connection: %w", err)
	}

	s.record(ctx, caller, updated, string(models.StatePending), "connection."+string(decision))
	return updated, nil
}

// Cancel withdraws the caller's own pending request.
func (s *Service) Cancel(ctx context.Context, caller, connectionID int) (models.Connection, error) {
	conn, err := s.participantRecord(ctx, caller, connectionID)
	if err != nil {
		return models.Connection{}, err
	}
	if conn.RequesterID != caller {
		return models.Connection{}, apperr.New(apperr.KindUnauthorized, "only the requester can cancel")
	}
	if conn.State != models.StatePending {
		return models.Connection{}, apperr.New(apperr.KindInvalidState, "connection is %s", conn.State)
	}

	updated, err := s.repo.TransitionConnection(ctx, connectionID, models.StatePending, models.StateCancelled)
	if errors.Is(err, repositories.ErrStaleState) {
		return models.Connection{}, apperr.New(apperr.KindInvalidState, "connection was already resolved")
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("cancel connection: %w", err)
	}

	s.record(ctx, caller, updated, string(models.StatePending), "connection.cancelled")
	return updated, nil
}

// Status reports the pair's status as seen by user.
func (s *Service) Status(ctx context.Context, user, other int) (models.ConnectionView, error) {
	if user == other {
		return models.ConnectionView{Status: models.StatusNone}, nil
	}
	records, err := s.repo.ListConnectionsBetween(ctx, user, other)
	if err != nil {
		return models.ConnectionView{}, fmt.Errorf("connection status: %w", err)
	}
	return models.SummarizeConnections(records, user), nil
}

// IsConnected reports whether a and b have an accepted connection of any type.
func (s *Service) IsConnected(ctx context.Context, a, b int) (bool, error) {
	view, err := s.Status(ctx, a, b)
	if err != nil {
		return false, err
	}
	return view.Status == models.StatusAccepted, nil
}

// List returns the caller's connections. An empty state returns every non-cancelled record.
func (s *Service) List(ctx context.Context, caller int, state models.ConnectionState) ([]models.UserConnection, error) {
	records, err := s.repo.ListConnectionsForUser(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]models.UserConnection, 0, len(records))
	for _, rec := range records {
		if rec.State == models.StateCancelled {
			continue
		}
		if state != "" && rec.State != state {
			continue
		}
		out = append(out, rec.ViewFor(caller))
	}
	return out, nil
}

// ViewsFor summarizes the viewer's status with each of others in one query.
func (s *Service) ViewsFor(ctx context.Context, viewer int, others []int) (map[int]models.ConnectionView, error) {
	records, err := s.repo.ListConnectionsForUser(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("connection views: %w", err)
	}
	byOther := make(map[int][]models.Connection)
	for _, rec := range records {
		other := rec.Other(viewer)
		byOther[other] = append(byOther[other], rec)
	}
	views := make(map[int]models.ConnectionView, len(others))
	for _, id := range others {
		views[id] = models.SummarizeConnections(byOther[id], viewer)
	}
	return views, nil
}

func (s *Service) participantRecord(ctx context.Context, caller, connectionID int) (models.Connection, error) {
	conn, err := s.repo.GetConnection(ctx, connectionID)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		return models.Connection{}, apperr.New(apperr.KindNotFound, "connection not found")
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("load connection: %w", err)
	}
	if !conn.Involves(caller) {
		return models.Connection{}, apperr.New(apperr.KindNotFound, "connection not found")
	}
	return conn, nil
}

func (s *Service) record(ctx context.Context, actor int, conn models.Connection, from, action string) {
	observability.IncConnectionTransition(from, string(conn.State))
	if s.audit == nil {
		return
	}
	s.audit.Action(ctx, action, actor, map[string]any{
		"connection_id":   conn.ID,
		"connection_type": string(conn.Type),
		"other_user_id":   conn.Other(actor),
		"from":            from,
		"to":              string(conn.State),
	})
}
