package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/eventhub/internal/model"
	"github.com/dkoval/eventhub/internal/repository"
)

var (
	regNow   = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	regStart = regNow.Add(-24 * time.Hour)
	regEnd   = regNow.Add(24 * time.Hour)
)

func newTestRegistrationService(
	teams *MockTeamRepository,
	members *MockMemberRepository,
	users *MockUserRepository,
	events *MockEventRepository,
) *RegistrationService {
	return NewRegistrationService(new(MockTransactor)).
		WithTeamRepo(teams).
		WithMemberRepo(members).
		WithUserRepo(users).
		WithEventRepo(events).
		WithNow(func() time.Time { return regNow })
}

func TestRegistrationService_RegisterForEvent(t *testing.T) {
	maxParticipants := 100

	openEvent := &repository.Event{
		ID:                "event1",
		Title:             "Hack Night",
		RegistrationStart: regStart,
		RegistrationEnd:   regEnd,
		MaxParticipants:   &maxParticipants,
		MaxTeamSize:       4,
	}

	tests := []struct {
		name          string
		setupMocks    func(*MockTeamRepository, *MockMemberRepository, *MockUserRepository, *MockEventRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success creates a single-member team",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				er.On("GetForUpdate", mock.Anything, "event1").Return(openEvent, nil)
				mr.On("ExistsInEvent", mock.Anything, "event1", "user1").Return(false, nil)
				mr.On("CountDistinctByEvent", mock.Anything, "event1").Return(10, nil)
				ur.On("Get", mock.Anything, "user1").Return(&repository.User{
					ID: "user1", FullName: "John Doe", IsActive: true,
				}, nil)
				tr.On("Create", mock.Anything, mock.MatchedBy(func(team *repository.Team) bool {
					return team.Name == "John Doe's Team" &&
						team.Description == "Individual participant" &&
						team.EventID == "event1" &&
						team.LeaderID == "user1"
				})).Return(nil)
				mr.On("Add", mock.Anything, mock.MatchedBy(func(m *repository.TeamMember) bool {
					return m.EventID == "event1" && m.UserID == "user1" && m.Role == repository.RoleLeader
				})).Return(nil)
			},
		},
		{
			name: "success without a participant cap",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				uncapped := *openEvent
				uncapped.MaxParticipants = nil
				er.On("GetForUpdate", mock.Anything, "event1").Return(&uncapped, nil)
				mr.On("ExistsInEvent", mock.Anything, "event1", "user1").Return(false, nil)
				ur.On("Get", mock.Anything, "user1").Return(&repository.User{
					ID: "user1", FullName: "John Doe", IsActive: true,
				}, nil)
				tr.On("Create", mock.Anything, mock.Anything).Return(nil)
				mr.On("Add", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name: "event not found",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				er.On("GetForUpdate", mock.Anything, "event1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name: "registration has not started",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				future := *openEvent
				future.RegistrationStart = regNow.Add(time.Hour)
				future.RegistrationEnd = regNow.Add(48 * time.Hour)
				er.On("GetForUpdate", mock.Anything, "event1").Return(&future, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeRegistrationClosed,
		},
		{
			name: "registration has ended",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				past := *openEvent
				past.RegistrationStart = regNow.Add(-48 * time.Hour)
				past.RegistrationEnd = regNow.Add(-time.Hour)
				er.On("GetForUpdate", mock.Anything, "event1").Return(&past, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeRegistrationClosed,
		},
		{
			name: "already registered",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				er.On("GetForUpdate", mock.Anything, "event1").Return(openEvent, nil)
				mr.On("ExistsInEvent", mock.Anything, "event1", "user1").Return(true, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeAlreadyRegistered,
		},
		{
			name: "event full",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				er.On("GetForUpdate", mock.Anything, "event1").Return(openEvent, nil)
				mr.On("ExistsInEvent", mock.Anything, "event1", "user1").Return(false, nil)
				mr.On("CountDistinctByEvent", mock.Anything, "event1").Return(100, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeEventFull,
		},
		{
			name: "user not found",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				er.On("GetForUpdate", mock.Anything, "event1").Return(openEvent, nil)
				mr.On("ExistsInEvent", mock.Anything, "event1", "user1").Return(false, nil)
				mr.On("CountDistinctByEvent", mock.Anything, "event1").Return(10, nil)
				ur.On("Get", mock.Anything, "user1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeUserNotFound,
		},
		{
			name: "lost the insert race",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, ur *MockUserRepository, er *MockEventRepository) {
				er.On("GetForUpdate", mock.Anything, "event1").Return(openEvent, nil)
				mr.On("ExistsInEvent", mock.Anything, "event1", "user1").Return(false, nil)
				mr.On("CountDistinctByEvent", mock.Anything, "event1").Return(10, nil)
				ur.On("Get", mock.Anything, "user1").Return(&repository.User{
					ID: "user1", FullName: "John Doe",
				}, nil)
				tr.On("Create", mock.Anything, mock.Anything).Return(nil)
				mr.On("Add", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeAlreadyRegistered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			teams := new(MockTeamRepository)
			members := new(MockMemberRepository)
			users := new(MockUserRepository)
			events := new(MockEventRepository)

			tt.setupMocks(teams, members, users, events)

			service := newTestRegistrationService(teams, members, users, events)

			err := service.RegisterForEvent(context.Background(), "event1", "user1")

			if tt.expectedError {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
			} else {
				require.Nil(t, err)
			}

			teams.AssertExpectations(t)
			members.AssertExpectations(t)
			users.AssertExpectations(t)
			events.AssertExpectations(t)
		})
	}
}

func TestRegistrationService_UnregisterFromEvent(t *testing.T) {
	event := &repository.Event{ID: "event1", MaxTeamSize: 4}

	tests := []struct {
		name          string
		userID        string
		setupMocks    func(*MockTeamRepository, *MockMemberRepository, *MockEventRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name:   "not registered",
			userID: "user1",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(event, nil)
				tr.On("ListByEventAndUser", mock.Anything, "event1", "user1").Return([]*repository.Team{}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotRegistered,
		},
		{
			name:   "event not found",
			userID: "user1",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:   "sole member leaves and the team is deleted",
			userID: "user1",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(event, nil)
				tr.On("ListByEventAndUser", mock.Anything, "event1", "user1").Return([]*repository.Team{
					{ID: "team1", EventID: "event1", LeaderID: "user1"},
				}, nil)
				mr.On("Count", mock.Anything, "team1").Return(1, nil)
				mr.On("RemoveAll", mock.Anything, "team1").Return(nil)
				tr.On("Delete", mock.Anything, "team1").Return(nil)
			},
		},
		{
			name:   "regular member removed without promotion",
			userID: "user2",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(event, nil)
				tr.On("ListByEventAndUser", mock.Anything, "event1", "user2").Return([]*repository.Team{
					{ID: "team1", EventID: "event1", LeaderID: "user1"},
				}, nil)
				mr.On("Count", mock.Anything, "team1").Return(2, nil)
				mr.On("Remove", mock.Anything, "team1", "user2").Return(nil)
			},
		},
		{
			name:   "departing leader replaced by the longest-standing member",
			userID: "user1",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(event, nil)
				tr.On("ListByEventAndUser", mock.Anything, "event1", "user1").Return([]*repository.Team{
					{ID: "team1", EventID: "event1", LeaderID: "user1"},
				}, nil)
				mr.On("Count", mock.Anything, "team1").Return(3, nil)
				mr.On("Remove", mock.Anything, "team1", "user1").Return(nil)
				mr.On("List", mock.Anything, "team1").Return([]*repository.TeamMember{
					{ID: "m2", TeamID: "team1", UserID: "user2", Role: repository.RoleMember, JoinedAt: joinedAt},
					{ID: "m3", TeamID: "team1", UserID: "user3", Role: repository.RoleMember, JoinedAt: joinedAt.Add(time.Minute)},
				}, nil)
				tr.On("SetLeader", mock.Anything, "team1", "user2").Return(nil)
				mr.On("SetRole", mock.Anything, "team1", "user2", repository.RoleLeader).Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			teams := new(MockTeamRepository)
			members := new(MockMemberRepository)
			events := new(MockEventRepository)

			tt.setupMocks(teams, members, events)

			service := newTestRegistrationService(teams, members, new(MockUserRepository), events)

			err := service.UnregisterFromEvent(context.Background(), "event1", tt.userID)

			if tt.expectedError {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
			} else {
				require.Nil(t, err)
			}

			teams.AssertExpectations(t)
			members.AssertExpectations(t)
			events.AssertExpectations(t)
		})
	}
}

func TestRegistrationService_IsUserRegistered(t *testing.T) {
	tests := []struct {
		name       string
		registered bool
	}{
		{name: "registered", registered: true},
		{name: "not registered", registered: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := new(MockMemberRepository)
			members.On("ExistsInEvent", mock.Anything, "event1", "user1").Return(tt.registered, nil)

			service := newTestRegistrationService(new(MockTeamRepository), members, new(MockUserRepository), new(MockEventRepository))

			got, err := service.IsUserRegistered(context.Background(), "event1", "user1")

			require.Nil(t, err)
			assert.Equal(t, tt.registered, got)

			members.AssertExpectations(t)
		})
	}
}

func TestRegistrationService_Counts(t *testing.T) {
	members := new(MockMemberRepository)
	members.On("CountDistinctByEvent", mock.Anything, "event1").Return(17, nil)

	teams := new(MockTeamRepository)
	teams.On("CountByEvent", mock.Anything, "event1").Return(5, nil)

	service := newTestRegistrationService(teams, members, new(MockUserRepository), new(MockEventRepository))

	participants, err := service.ParticipantsCount(context.Background(), "event1")
	require.Nil(t, err)
	assert.Equal(t, 17, participants)

	teamCount, err := service.TeamsCount(context.Background(), "event1")
	require.Nil(t, err)
	assert.Equal(t, 5, teamCount)

	members.AssertExpectations(t)
	teams.AssertExpectations(t)
}

func TestRegistrationService_EventAnalytics(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(*MockTeamRepository, *MockMemberRepository, *MockEventRepository)
		expected      *model.EventAnalytics
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success with untracked teams bucketed separately",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(&repository.Event{ID: "event1"}, nil)
				mr.On("CountDistinctByEvent", mock.Anything, "event1").Return(10, nil)
				tr.On("CountByEvent", mock.Anything, "event1").Return(4, nil)
				tr.On("TrackCounts", mock.Anything, "event1").Return(map[string]int{
					"ai": 3,
					"":   1,
				}, nil)
			},
			expected: &model.EventAnalytics{
				TotalRegistrations: 10,
				TotalTeams:         4,
				AverageTeamSize:    2.5,
				TrackDistribution:  map[string]int{"ai": 3, "No Track": 1},
			},
		},
		{
			name: "no teams yet",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(&repository.Event{ID: "event1"}, nil)
				mr.On("CountDistinctByEvent", mock.Anything, "event1").Return(0, nil)
				tr.On("CountByEvent", mock.Anything, "event1").Return(0, nil)
				tr.On("TrackCounts", mock.Anything, "event1").Return(map[string]int{}, nil)
			},
			expected: &model.EventAnalytics{
				TotalRegistrations: 0,
				TotalTeams:         0,
				AverageTeamSize:    0,
				TrackDistribution:  map[string]int{},
			},
		},
		{
			name: "event not found",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository, er *MockEventRepository) {
				er.On("Get", mock.Anything, "event1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			teams := new(MockTeamRepository)
			members := new(MockMemberRepository)
			events := new(MockEventRepository)

			tt.setupMocks(teams, members, events)

			service := newTestRegistrationService(teams, members, new(MockUserRepository), events)

			got, err := service.EventAnalytics(context.Background(), "event1")

			if tt.expectedError {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				require.Nil(t, err)
				assert.Equal(t, tt.expected, got)
			}

			teams.AssertExpectations(t)
			members.AssertExpectations(t)
			events.AssertExpectations(t)
		})
	}
}
