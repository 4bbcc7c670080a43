package model

import "time"

type MemberRole string

const (
	MemberRoleLeader MemberRole = "leader"
	MemberRoleMember MemberRole = "member"
)

// Team is the externally visible representation: team fields plus the resolved
// leader and the full ordered member list, assembled from one consistent read.
type Team struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Track       string        `json:"track,omitempty"`
	EventID     string        `json:"event_id"`
	LeaderID    string        `json:"leader_id"`
	Leader      *User         `json:"leader"`
	Members     []*TeamMember `json:"members"`
	CreatedAt   time.Time     `json:"created_at"`
}

type TeamMember struct {
	ID       string     `json:"id"`
	User     *User      `json:"user"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
}

type TeamCreate struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Track       string `json:"track"`
	EventID     string `json:"event_id" validate:"required"`
}

type TeamUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Track       *string `json:"track,omitempty"`
}

type TeamInvite struct {
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message"`
}
