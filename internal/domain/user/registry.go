package user

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrUnknownUser is returned for an ID not present in the registry.
var ErrUnknownUser = errors.New("unknown user")

// Registry tracks connected users with thread-safe access. The online count
// it reports feeds the upvote free-promotion check; that count changes as
// users connect and disconnect, so callers must treat it as best-effort.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]*User
	online map[string]struct{}
}

// NewRegistry creates an empty user registry.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]*User),
		online: make(map[string]struct{}),
	}
}

// Join registers a user (creating the identity when needed) and marks them
// online. Returns the user ID.
func (r *Registry) Join(name string, operator bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.users {
		if u.Name == name {
			r.online[id] = struct{}{}
			return id
		}
	}

	id := uuid.New().String()
	r.users[id] = NewUser(id, name, operator)
	r.online[id] = struct{}{}
	return id
}

// Leave marks a user offline. The identity is kept so their entries stay
// attributed.
func (r *Registry) Leave(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, userID)
}

// Get retrieves a user by ID.
func (r *Registry) Get(userID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownUser, "id=%s", userID)
	}
	return u, nil
}

// IsOperator reports whether the user exists and has operator rights.
func (r *Registry) IsOperator(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	return ok && u.Operator
}

// OnlineCount returns the number of users currently online.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

// All returns every known user.
func (r *Registry) All() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		result = append(result, u)
	}
	return result
}
