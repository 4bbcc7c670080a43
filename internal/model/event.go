package model

import "time"

// Event carries the fields the registration manager reads from the event
// directory. Events are never mutated from this service.
type Event struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	RegistrationStart time.Time `json:"registration_start"`
	RegistrationEnd   time.Time `json:"registration_end"`
	MaxParticipants   *int      `json:"max_participants,omitempty"`
	MaxTeamSize       int       `json:"max_team_size"`
	IsPublic          bool      `json:"is_public"`
}

// EventAnalytics aggregates registrations, teams, average team size and the
// per-track team distribution for one event.
type EventAnalytics struct {
	TotalRegistrations int            `json:"total_registrations"`
	TotalTeams         int            `json:"total_teams"`
	AverageTeamSize    float64        `json:"average_team_size"`
	TrackDistribution  map[string]int `json:"track_distribution"`
}
