package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dkoval/eventhub/internal/db"
	"github.com/dkoval/eventhub/internal/model"
	"github.com/dkoval/eventhub/internal/repository"
	"github.com/dkoval/eventhub/pkg/logger"
)

// TeamService owns the Team and TeamMember entities and enforces the
// one-team-per-user-per-event rule, team capacity and leader consistency.
// Every compound mutation runs inside a single storage transaction.
type TeamService struct {
	tx db.Transactor

	teams   repository.TeamRepository
	members repository.MemberRepository
	users   repository.UserRepository
	events  repository.EventRepository
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{tx: tx}
}

func (s *TeamService) CreateTeam(ctx context.Context, create *model.TeamCreate, leaderID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("creating team",
		zap.String("team_name", create.Name),
		zap.String("event_id", create.EventID),
		zap.String("leader_id", leaderID))

	var resp *model.Team

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		registered, err := s.members.ExistsInEvent(txCtx, create.EventID, leaderID)
		if err != nil {
			l.Error("failed to check event registration", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to check event registration")
		}
		if registered {
			l.Warn("user already has a team for this event",
				zap.String("event_id", create.EventID), zap.String("user_id", leaderID))
			return NewError(ErrorCodeAlreadyRegistered, "already part of a team for this event")
		}

		team := &repository.Team{
			ID:          uuid.NewString(),
			Name:        create.Name,
			Description: create.Description,
			Track:       create.Track,
			EventID:     create.EventID,
			LeaderID:    leaderID,
		}
		if err = s.teams.Create(txCtx, team); err != nil {
			l.Error("failed to create team", zap.String("team_name", create.Name), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create team")
		}

		err = s.members.Add(txCtx, &repository.TeamMember{
			ID:      uuid.NewString(),
			TeamID:  team.ID,
			EventID: create.EventID,
			UserID:  leaderID,
			Role:    repository.RoleLeader,
		})
		// The unique index on (event_id, user_id) closes the race two
		// concurrent creates for the same user would otherwise win together.
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeAlreadyRegistered, "already part of a team for this event")
		}
		if err != nil {
			l.Error("failed to add leader membership", zap.String("team_id", team.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to add leader membership")
		}

		created, err := s.teams.Get(txCtx, team.ID)
		if err != nil {
			return NewError(ErrorCodeUnspecified, "failed to load created team")
		}

		resp, err = s.assembleTeam(txCtx, created)
		return err
	})
	if svcErr := serviceError(err); svcErr != nil {
		return nil, svcErr
	}

	l.Debug("team created", zap.String("team_id", resp.ID))

	return resp, nil
}

func (s *TeamService) GetTeam(ctx context.Context, teamID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("getting team", zap.String("team_id", teamID))

	var resp *model.Team

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		// Shared lock on the team row keeps a concurrent leadership transfer
		// from interleaving between the team read and the member read.
		team, err := s.teams.GetForShare(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		resp, err = s.assembleTeam(txCtx, team)
		return err
	})
	if svcErr := serviceError(err); svcErr != nil {
		return nil, svcErr
	}

	return resp, nil
}

func (s *TeamService) ListEventTeams(ctx context.Context, eventID string) ([]*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("listing event teams", zap.String("event_id", eventID))

	var resp []*model.Team

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		teams, err := s.teams.ListByEvent(txCtx, eventID)
		if err != nil {
			l.Error("failed to list teams", zap.String("event_id", eventID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to list teams")
		}

		resp = make([]*model.Team, 0, len(teams))
		for _, team := range teams {
			assembled, err := s.assembleTeam(txCtx, team)
			if err != nil {
				return err
			}
			resp = append(resp, assembled)
		}
		return nil
	})
	if svcErr := serviceError(err); svcErr != nil {
		return nil, svcErr
	}

	return resp, nil
}

func (s *TeamService) UpdateTeam(ctx context.Context, teamID string, upd *model.TeamUpdate) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("updating team", zap.String("team_id", teamID))

	if upd.Name == nil && upd.Description == nil && upd.Track == nil {
		return s.GetTeam(ctx, teamID)
	}

	var resp *model.Team

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := s.teams.Patch(txCtx, &repository.TeamPatch{
			ID:          teamID,
			Name:        upd.Name,
			Description: upd.Description,
			Track:       upd.Track,
		})
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to update team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update team")
		}

		resp, err = s.assembleTeam(txCtx, team)
		return err
	})
	if svcErr := serviceError(err); svcErr != nil {
		return nil, svcErr
	}

	return resp, nil
}

// DeleteTeam removes all memberships then the team row in one transaction.
// Leader/admin authorization is the caller's responsibility.
func (s *TeamService) DeleteTeam(ctx context.Context, teamID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("deleting team", zap.String("team_id", teamID))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		_, err := s.teams.GetForUpdate(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		if err = s.members.RemoveAll(txCtx, teamID); err != nil {
			l.Error("failed to remove memberships", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to remove memberships")
		}

		if err = s.teams.Delete(txCtx, teamID); err != nil {
			l.Error("failed to delete team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete team")
		}

		return nil
	})

	return serviceError(err)
}

func (s *TeamService) JoinTeam(ctx context.Context, teamID, userID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("joining team", zap.String("team_id", teamID), zap.String("user_id", userID))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := s.teams.GetForUpdate(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		return s.addMemberLocked(txCtx, team, userID)
	})

	return serviceError(err)
}

// addMemberLocked inserts a membership for a team whose row is already locked
// by the surrounding transaction. The lock makes the size check and the insert
// atomic: two joins racing for the last seat serialize on the team row.
// A user who already has a team for the event is rejected before the size
// check, so that outranks a full team.
func (s *TeamService) addMemberLocked(ctx context.Context, team *repository.Team, userID string) error {
	l := logger.FromContext(ctx)

	registered, err := s.members.ExistsInEvent(ctx, team.EventID, userID)
	if err != nil {
		l.Error("failed to check event registration", zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to check event registration")
	}
	if registered {
		l.Warn("user already has a team for this event",
			zap.String("event_id", team.EventID), zap.String("user_id", userID))
		return NewError(ErrorCodeAlreadyRegistered, "already part of a team for this event")
	}

	event, err := s.events.Get(ctx, team.EventID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "event not found")
	}
	if err != nil {
		l.Error("failed to get event", zap.String("event_id", team.EventID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to get event")
	}

	size, err := s.members.Count(ctx, team.ID)
	if err != nil {
		l.Error("failed to count members", zap.String("team_id", team.ID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to count members")
	}
	if size >= event.MaxTeamSize {
		l.Warn("team is full",
			zap.String("team_id", team.ID),
			zap.Int("size", size),
			zap.Int("max_team_size", event.MaxTeamSize))
		return NewError(ErrorCodeTeamFull, "team is already at maximum size")
	}

	err = s.members.Add(ctx, &repository.TeamMember{
		ID:      uuid.NewString(),
		TeamID:  team.ID,
		EventID: team.EventID,
		UserID:  userID,
		Role:    repository.RoleMember,
	})
	if errors.Is(err, repository.ErrAlreadyExists) {
		l.Warn("user already has a team for this event",
			zap.String("event_id", team.EventID), zap.String("user_id", userID))
		return NewError(ErrorCodeAlreadyRegistered, "already part of a team for this event")
	}
	if err != nil {
		l.Error("failed to add member", zap.String("team_id", team.ID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to add member")
	}

	return nil
}

func (s *TeamService) LeaveTeam(ctx context.Context, teamID, userID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("leaving team", zap.String("team_id", teamID), zap.String("user_id", userID))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := s.teams.GetForUpdate(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		if _, err = s.members.Get(txCtx, teamID, userID); errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotMember, "not a member of this team")
		} else if err != nil {
			l.Error("failed to get membership", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get membership")
		}

		size, err := s.members.Count(txCtx, teamID)
		if err != nil {
			l.Error("failed to count members", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to count members")
		}

		if team.LeaderID == userID && size > 1 {
			l.Warn("leader attempted to leave a multi-member team",
				zap.String("team_id", teamID), zap.String("user_id", userID))
			return NewError(ErrorCodeLeaderMustTransfer,
				"transfer leadership before leaving, or delete the team")
		}

		if size == 1 {
			// Last member out: the team goes with them.
			if err = s.members.RemoveAll(txCtx, teamID); err != nil {
				l.Error("failed to remove membership", zap.String("team_id", teamID), zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to remove membership")
			}
			if err = s.teams.Delete(txCtx, teamID); err != nil {
				l.Error("failed to delete empty team", zap.String("team_id", teamID), zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to delete empty team")
			}
			return nil
		}

		if err = s.members.Remove(txCtx, teamID, userID); err != nil {
			l.Error("failed to remove member", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to remove member")
		}

		return nil
	})

	return serviceError(err)
}

func (s *TeamService) TransferLeadership(ctx context.Context, teamID, currentLeaderID, newLeaderID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("transferring leadership",
		zap.String("team_id", teamID),
		zap.String("from", currentLeaderID),
		zap.String("to", newLeaderID))

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := s.teams.GetForUpdate(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		if team.LeaderID != currentLeaderID {
			l.Warn("caller is not the team leader",
				zap.String("team_id", teamID), zap.String("user_id", currentLeaderID))
			return NewError(ErrorCodeNotLeader, "only the current leader can transfer leadership")
		}

		if _, err = s.members.Get(txCtx, teamID, newLeaderID); errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotMember, "target user is not a member of this team")
		} else if err != nil {
			l.Error("failed to get membership", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get membership")
		}

		if err = s.teams.SetLeader(txCtx, teamID, newLeaderID); err != nil {
			l.Error("failed to set leader", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to set leader")
		}
		if err = s.members.SetRole(txCtx, teamID, currentLeaderID, repository.RoleMember); err != nil {
			l.Error("failed to demote leader", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to demote leader")
		}
		if err = s.members.SetRole(txCtx, teamID, newLeaderID, repository.RoleLeader); err != nil {
			l.Error("failed to promote member", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to promote member")
		}

		return nil
	})

	return serviceError(err)
}

// InviteByEmail resolves the email against the identity store and adds the
// user directly, under the same capacity and one-team-per-event checks as a
// join. No invitation record or notification is produced.
func (s *TeamService) InviteByEmail(ctx context.Context, teamID, email, message string) *Error {
	l := logger.FromContext(ctx)
	l.Info("inviting user by email",
		zap.String("team_id", teamID), zap.String("email", email))

	if message != "" {
		// There is no notification path, so the message is only recorded here.
		l.Debug("invite message ignored", zap.String("team_id", teamID))
	}

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		// The email is resolved before the team so a bad address always
		// reports USER_NOT_FOUND, whatever state the team is in.
		user, err := s.users.GetByEmail(txCtx, email)
		if errors.Is(err, repository.ErrNotFound) {
			l.Warn("invited user not found", zap.String("email", email))
			return NewError(ErrorCodeUserNotFound, "no user with this email")
		}
		if err != nil {
			l.Error("failed to look up user", zap.String("email", email), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to look up user")
		}

		team, err := s.teams.GetForUpdate(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		return s.addMemberLocked(txCtx, team, user.ID)
	})

	return serviceError(err)
}

// IsUserInTeam is the membership check the submission subsystem uses to
// authorize submission edits.
func (s *TeamService) IsUserInTeam(ctx context.Context, userID, teamID string) (bool, *Error) {
	_, err := s.members.Get(ctx, teamID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, NewError(ErrorCodeUnspecified, "failed to check membership")
	}
	return true, nil
}

func (s *TeamService) assembleTeam(ctx context.Context, team *repository.Team) (*model.Team, error) {
	l := logger.FromContext(ctx)

	members, err := s.members.List(ctx, team.ID)
	if err != nil {
		l.Error("failed to list members", zap.String("team_id", team.ID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list members")
	}

	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.UserID)
	}

	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		l.Error("failed to resolve member users", zap.String("team_id", team.ID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to resolve member users")
	}

	usersByID := make(map[string]*model.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = &model.User{
			ID:       u.ID,
			Email:    u.Email,
			FullName: u.FullName,
			IsActive: u.IsActive,
			Role:     model.UserRole(u.Role),
		}
	}

	resp := &model.Team{
		ID:          team.ID,
		Name:        team.Name,
		Description: team.Description,
		Track:       team.Track,
		EventID:     team.EventID,
		LeaderID:    team.LeaderID,
		Leader:      usersByID[team.LeaderID],
		Members:     make([]*model.TeamMember, 0, len(members)),
		CreatedAt:   team.CreatedAt,
	}

	for _, member := range members {
		resp.Members = append(resp.Members, &model.TeamMember{
			ID:       member.ID,
			User:     usersByID[member.UserID],
			Role:     model.MemberRole(member.Role),
			JoinedAt: member.JoinedAt,
		})
	}

	return resp, nil
}

func (s *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	s.teams = r
	return s
}

func (s *TeamService) WithMemberRepo(r repository.MemberRepository) *TeamService {
	s.members = r
	return s
}

func (s *TeamService) WithUserRepo(r repository.UserRepository) *TeamService {
	s.users = r
	return s
}

func (s *TeamService) WithEventRepo(r repository.EventRepository) *TeamService {
	s.events = r
	return s
}
