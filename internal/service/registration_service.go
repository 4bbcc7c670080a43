package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dkoval/eventhub/internal/db"
	"github.com/dkoval/eventhub/internal/model"
	"github.com/dkoval/eventhub/internal/repository"
	"github.com/dkoval/eventhub/pkg/logger"
)

// RegistrationService handles the individual-registration path: registering
// for an event is creating a single-member team, unregistering cascades
// through every team of that event the user belongs to.
type RegistrationService struct {
	tx db.Transactor

	teams   repository.TeamRepository
	members repository.MemberRepository
	users   repository.UserRepository
	events  repository.EventRepository

	now func() time.Time
}

func NewRegistrationService(tx db.Transactor) *RegistrationService {
	return &RegistrationService{
		tx:  tx,
		now: time.Now,
	}
}

func (s *RegistrationService) RegisterForEvent(ctx context.Context, eventID, userID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("registering for event",
		zap.String("event_id", eventID), zap.String("user_id", userID))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		// Lock the event row before counting participants so two registrations
		// at max_participants-1 serialize and only one passes the check.
		event, err := s.events.GetForUpdate(txCtx, eventID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "event not found")
		}
		if err != nil {
			l.Error("failed to get event", zap.String("event_id", eventID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get event")
		}

		now := s.now()
		if now.Before(event.RegistrationStart) || now.After(event.RegistrationEnd) {
			l.Warn("registration window closed",
				zap.String("event_id", eventID),
				zap.Time("registration_start", event.RegistrationStart),
				zap.Time("registration_end", event.RegistrationEnd))
			return NewError(ErrorCodeRegistrationClosed, "registration is not currently open")
		}

		registered, err := s.members.ExistsInEvent(txCtx, eventID, userID)
		if err != nil {
			l.Error("failed to check registration", zap.String("event_id", eventID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to check registration")
		}
		if registered {
			l.Warn("user already registered",
				zap.String("event_id", eventID), zap.String("user_id", userID))
			return NewError(ErrorCodeAlreadyRegistered, "already registered for this event")
		}

		if event.MaxParticipants != nil {
			count, err := s.members.CountDistinctByEvent(txCtx, eventID)
			if err != nil {
				l.Error("failed to count participants", zap.String("event_id", eventID), zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to count participants")
			}
			if count >= *event.MaxParticipants {
				l.Warn("event is full",
					zap.String("event_id", eventID),
					zap.Int("participants", count),
					zap.Int("max_participants", *event.MaxParticipants))
				return NewError(ErrorCodeEventFull, "event is full")
			}
		}

		user, err := s.users.Get(txCtx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeUserNotFound, "user not found")
		}
		if err != nil {
			l.Error("failed to get user", zap.String("user_id", userID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get user")
		}

		team := &repository.Team{
			ID:          uuid.NewString(),
			Name:        fmt.Sprintf("%s's Team", user.FullName),
			Description: "Individual participant",
			EventID:     eventID,
			LeaderID:    userID,
		}
		if err = s.teams.Create(txCtx, team); err != nil {
			l.Error("failed to create team", zap.String("event_id", eventID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create team")
		}

		err = s.members.Add(txCtx, &repository.TeamMember{
			ID:      uuid.NewString(),
			TeamID:  team.ID,
			EventID: eventID,
			UserID:  userID,
			Role:    repository.RoleLeader,
		})
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeAlreadyRegistered, "already registered for this event")
		}
		if err != nil {
			l.Error("failed to add membership", zap.String("team_id", team.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to add membership")
		}

		l.Debug("registered", zap.String("team_id", team.ID))

		return nil
	})

	return serviceError(err)
}

func (s *RegistrationService) UnregisterFromEvent(ctx context.Context, eventID, userID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("unregistering from event",
		zap.String("event_id", eventID), zap.String("user_id", userID))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.events.Get(txCtx, eventID); errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "event not found")
		} else if err != nil {
			l.Error("failed to get event", zap.String("event_id", eventID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get event")
		}

		// Locks every touched team row for the rest of the transaction.
		teams, err := s.teams.ListByEventAndUser(txCtx, eventID, userID)
		if err != nil {
			l.Error("failed to list user teams", zap.String("event_id", eventID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to list user teams")
		}
		if len(teams) == 0 {
			l.Warn("user not registered",
				zap.String("event_id", eventID), zap.String("user_id", userID))
			return NewError(ErrorCodeNotRegistered, "not registered for this event")
		}

		for _, team := range teams {
			if err = s.removeFromTeamLocked(txCtx, team, userID); err != nil {
				return err
			}
		}

		return nil
	})

	return serviceError(err)
}

// removeFromTeamLocked removes the user from a team whose row the transaction
// already holds locked. An emptied team is deleted; a departed leader is
// replaced by the longest-standing remaining member (joined_at, then id).
func (s *RegistrationService) removeFromTeamLocked(ctx context.Context, team *repository.Team, userID string) error {
	l := logger.FromContext(ctx)

	size, err := s.members.Count(ctx, team.ID)
	if err != nil {
		l.Error("failed to count members", zap.String("team_id", team.ID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to count members")
	}

	if size == 1 {
		if err = s.members.RemoveAll(ctx, team.ID); err != nil {
			l.Error("failed to remove membership", zap.String("team_id", team.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to remove membership")
		}
		if err = s.teams.Delete(ctx, team.ID); err != nil {
			l.Error("failed to delete empty team", zap.String("team_id", team.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete empty team")
		}
		return nil
	}

	if err = s.members.Remove(ctx, team.ID, userID); err != nil {
		l.Error("failed to remove member", zap.String("team_id", team.ID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to remove member")
	}

	if team.LeaderID != userID {
		return nil
	}

	remaining, err := s.members.List(ctx, team.ID)
	if err != nil {
		l.Error("failed to list members", zap.String("team_id", team.ID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to list members")
	}

	successor := remaining[0]
	if err = s.teams.SetLeader(ctx, team.ID, successor.UserID); err != nil {
		l.Error("failed to set new leader", zap.String("team_id", team.ID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to set new leader")
	}
	if err = s.members.SetRole(ctx, team.ID, successor.UserID, repository.RoleLeader); err != nil {
		l.Error("failed to promote new leader", zap.String("team_id", team.ID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to promote new leader")
	}

	l.Info("promoted new leader",
		zap.String("team_id", team.ID), zap.String("user_id", successor.UserID))

	return nil
}

func (s *RegistrationService) IsUserRegistered(ctx context.Context, eventID, userID string) (bool, *Error) {
	registered, err := s.members.ExistsInEvent(ctx, eventID, userID)
	if err != nil {
		return false, NewError(ErrorCodeUnspecified, "failed to check registration")
	}
	return registered, nil
}

// ParticipantsCount reports the number of distinct users across all teams of
// the event. Counts are always computed from storage, never cached.
func (s *RegistrationService) ParticipantsCount(ctx context.Context, eventID string) (int, *Error) {
	count, err := s.members.CountDistinctByEvent(ctx, eventID)
	if err != nil {
		return 0, NewError(ErrorCodeUnspecified, "failed to count participants")
	}
	return count, nil
}

func (s *RegistrationService) TeamsCount(ctx context.Context, eventID string) (int, *Error) {
	count, err := s.teams.CountByEvent(ctx, eventID)
	if err != nil {
		return 0, NewError(ErrorCodeUnspecified, "failed to count teams")
	}
	return count, nil
}

func (s *RegistrationService) EventAnalytics(ctx context.Context, eventID string) (*model.EventAnalytics, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("computing event analytics", zap.String("event_id", eventID))

	var analytics *model.EventAnalytics

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.events.Get(txCtx, eventID); errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "event not found")
		} else if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to get event")
		}

		participants, err := s.members.CountDistinctByEvent(txCtx, eventID)
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to count participants")
		}

		teams, err := s.teams.CountByEvent(txCtx, eventID)
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to count teams")
		}

		trackCounts, err := s.teams.TrackCounts(txCtx, eventID)
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to count tracks")
		}

		distribution := make(map[string]int, len(trackCounts))
		for track, count := range trackCounts {
			if track == "" {
				track = "No Track"
			}
			distribution[track] = count
		}

		avgTeamSize := 0.0
		if teams > 0 {
			avgTeamSize = float64(participants) / float64(teams)
		}

		analytics = &model.EventAnalytics{
			TotalRegistrations: participants,
			TotalTeams:         teams,
			AverageTeamSize:    avgTeamSize,
			TrackDistribution:  distribution,
		}

		return nil
	})
	if svcErr := serviceError(err); svcErr != nil {
		return nil, svcErr
	}

	return analytics, nil
}

func (s *RegistrationService) WithTeamRepo(r repository.TeamRepository) *RegistrationService {
	s.teams = r
	return s
}

func (s *RegistrationService) WithMemberRepo(r repository.MemberRepository) *RegistrationService {
	s.members = r
	return s
}

func (s *RegistrationService) WithUserRepo(r repository.UserRepository) *RegistrationService {
	s.users = r
	return s
}

func (s *RegistrationService) WithEventRepo(r repository.EventRepository) *RegistrationService {
	s.events = r
	return s
}

// WithNow overrides the clock used for registration-window checks. Tests use
// this to pin the current time.
func (s *RegistrationService) WithNow(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}
