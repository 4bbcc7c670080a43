package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dkoval/eventhub/internal/model"
	"github.com/dkoval/eventhub/internal/service"
	"github.com/dkoval/eventhub/pkg/logger"
)

type Handler struct {
	team         *service.TeamService
	registration *service.RegistrationService

	healthChecker HealthChecker

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithTeamService(team *service.TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithRegistrationService(registration *service.RegistrationService) *Handler {
	h.registration = registration
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/health", h.healthChecker.HealthCheck())

	e.GET("/teams/:team_id", h.GetTeam)
	e.GET("/teams/event/:event_id", h.GetEventTeams)

	participants := e.Group("", AuthMiddleware(
		model.UserRoleParticipant, model.UserRoleOrganizer, model.UserRoleJudge))

	participants.POST("/teams", h.CreateTeam)
	participants.PUT("/teams/:team_id", h.UpdateTeam)
	participants.DELETE("/teams/:team_id", h.DeleteTeam)
	participants.POST("/teams/:team_id/join", h.JoinTeam)
	participants.POST("/teams/:team_id/leave", h.LeaveTeam)
	participants.POST("/teams/:team_id/invite", h.InviteToTeam)
	participants.POST("/teams/:team_id/transfer-leadership/:user_id", h.TransferLeadership)

	participants.POST("/events/:event_id/register", h.RegisterForEvent)
	participants.DELETE("/events/:event_id/register", h.UnregisterFromEvent)

	organizers := e.Group("", AuthMiddleware(model.UserRoleOrganizer))

	organizers.GET("/events/:event_id/analytics", h.GetEventAnalytics)
}

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	req := &model.TeamCreate{}
	if err := h.decodeRequest(e, req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	principal := GetPrincipal(e)

	l.Info("creating team",
		zap.String("team_name", req.Name),
		zap.String("event_id", req.EventID),
		zap.String("user_id", principal.UserID))

	team, err := h.team.CreateTeam(e.Request().Context(), req, principal.UserID)
	if err != nil {
		l.Error("failed to create team", zap.String("team_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, team)
}

func (h *Handler) GetTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("team_id")

	team, err := h.team.GetTeam(e.Request().Context(), teamID)
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) GetEventTeams(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("event_id")

	teams, err := h.team.ListEventTeams(e.Request().Context(), eventID)
	if err != nil {
		l.Error("failed to list event teams", zap.String("event_id", eventID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, teams)
}

func (h *Handler) UpdateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("team_id")

	req := &model.TeamUpdate{}
	if err := h.decodeRequest(e, req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if err := h.requireLeader(e, teamID, false); err != nil {
		return h.transportError(e, err)
	}

	team, err := h.team.UpdateTeam(e.Request().Context(), teamID, req)
	if err != nil {
		l.Error("failed to update team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) DeleteTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("team_id")

	if err := h.requireLeader(e, teamID, true); err != nil {
		return h.transportError(e, err)
	}

	l.Info("deleting team", zap.String("team_id", teamID))

	if err := h.team.DeleteTeam(e.Request().Context(), teamID); err != nil {
		l.Error("failed to delete team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, messageResponse{Message: "team deleted"})
}

func (h *Handler) JoinTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("team_id")
	principal := GetPrincipal(e)

	l.Info("joining team",
		zap.String("team_id", teamID), zap.String("user_id", principal.UserID))

	if err := h.team.JoinTeam(e.Request().Context(), teamID, principal.UserID); err != nil {
		l.Error("failed to join team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, messageResponse{Message: "joined team"})
}

func (h *Handler) LeaveTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("team_id")
	principal := GetPrincipal(e)

	l.Info("leaving team",
		zap.String("team_id", teamID), zap.String("user_id", principal.UserID))

	if err := h.team.LeaveTeam(e.Request().Context(), teamID, principal.UserID); err != nil {
		l.Error("failed to leave team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, messageResponse{Message: "left team"})
}

func (h *Handler) InviteToTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("team_id")

	req := &model.TeamInvite{}
	if err := h.decodeRequest(e, req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if err := h.requireLeader(e, teamID, false); err != nil {
		return h.transportError(e, err)
	}

	l.Info("inviting to team",
		zap.String("team_id", teamID), zap.String("email", req.Email))

	if err := h.team.InviteByEmail(e.Request().Context(), teamID, req.Email, req.Message); err != nil {
		l.Error("failed to invite", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, messageResponse{Message: "invitation accepted"})
}

func (h *Handler) TransferLeadership(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("team_id")
	newLeaderID := e.Param("user_id")
	principal := GetPrincipal(e)

	l.Info("transferring leadership",
		zap.String("team_id", teamID),
		zap.String("from", principal.UserID),
		zap.String("to", newLeaderID))

	err := h.team.TransferLeadership(e.Request().Context(), teamID, principal.UserID, newLeaderID)
	if err != nil {
		l.Error("failed to transfer leadership", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, messageResponse{Message: "leadership transferred"})
}

func (h *Handler) RegisterForEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("event_id")
	principal := GetPrincipal(e)

	l.Info("registering for event",
		zap.String("event_id", eventID), zap.String("user_id", principal.UserID))

	if err := h.registration.RegisterForEvent(e.Request().Context(), eventID, principal.UserID); err != nil {
		l.Error("failed to register", zap.String("event_id", eventID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, messageResponse{Message: "registered for event"})
}

func (h *Handler) UnregisterFromEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("event_id")
	principal := GetPrincipal(e)

	l.Info("unregistering from event",
		zap.String("event_id", eventID), zap.String("user_id", principal.UserID))

	if err := h.registration.UnregisterFromEvent(e.Request().Context(), eventID, principal.UserID); err != nil {
		l.Error("failed to unregister", zap.String("event_id", eventID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, messageResponse{Message: "unregistered from event"})
}

func (h *Handler) GetEventAnalytics(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("event_id")

	analytics, err := h.registration.EventAnalytics(e.Request().Context(), eventID)
	if err != nil {
		l.Error("failed to get analytics", zap.String("event_id", eventID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, analytics)
}

type messageResponse struct {
	Message string `json:"message"`
}

// requireLeader rejects callers that do not lead the team. With allowAdmin,
// platform admins pass as well (team deletion).
func (h *Handler) requireLeader(e echo.Context, teamID string, allowAdmin bool) *service.Error {
	principal := GetPrincipal(e)

	if allowAdmin && principal.Role == model.UserRoleAdmin {
		return nil
	}

	team, err := h.team.GetTeam(e.Request().Context(), teamID)
	if err != nil {
		return err
	}

	if team.LeaderID != principal.UserID {
		return service.NewError(service.ErrorCodeNotLeader, "only the team leader can do this")
	}

	return nil
}

func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound, service.ErrorCodeUserNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeAlreadyRegistered,
		service.ErrorCodeNotRegistered,
		service.ErrorCodeNotMember,
		service.ErrorCodeRegistrationClosed,
		service.ErrorCodeEventFull,
		service.ErrorCodeTeamFull,
		service.ErrorCodeLeaderMustTransfer,
		service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeNotLeader:
		return e.JSON(http.StatusForbidden, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
