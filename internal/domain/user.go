package domain

import "time"

// Profile is the agent role.
type Profile string

const (
	ProfileAdmin Profile = "admin"
	ProfileUser  Profile = "user"
)

// User is a helpdesk agent.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Profile      Profile   `json:"profile"`
	QueueIDs     []int64   `json:"queueIds"`
	WhatsappID   *int64    `json:"whatsappId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ServesQueue reports whether the user is a member of the queue.
func (u *User) ServesQueue(queueID int64) bool {
	return u != nil && ContainsQueue(u.QueueIDs, queueID)
}

// Summary is the denormalized form embedded in tickets.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name}
}

// UserSummary is the user shape carried by ticket payloads.
type UserSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
