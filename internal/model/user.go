package model

type UserRole string

const (
	UserRoleParticipant UserRole = "participant"
	UserRoleOrganizer   UserRole = "organizer"
	UserRoleJudge       UserRole = "judge"
	UserRoleAdmin       UserRole = "admin"
)

// User is the snapshot of an identity-store record this service exposes.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	IsActive bool     `json:"is_active"`
	Role     UserRole `json:"role"`
}
