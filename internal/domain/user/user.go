// Package user provides requester/voter identity and online presence.
package user

import "time"

// User represents a participant known to the engine.
type User struct {
	ID       string    // Participant UUID
	Name     string    // Display name
	Operator bool      // Operators bypass quota and moderation checks
	JoinedAt time.Time // Time the user connected
}

// NewUser creates a new user.
func NewUser(id, name string, operator bool) *User {
	return &User{
		ID:       id,
		Name:     name,
		Operator: operator,
		JoinedAt: time.Now(),
	}
}
