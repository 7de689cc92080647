package sdk

import (
	"maps"
	"sync"

	"github.com/google/uuid"
)

// User is the identity attached to outgoing events.
type User struct {
	mu          sync.RWMutex
	id          string
	anonymousID string
	traits      Traits
}

func newUser() *User {
	return &User{anonymousID: uuid.NewString(), traits: Traits{}}
}

// ID returns the identified user id, empty when anonymous.
func (u *User) ID() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.id
}

// AnonymousID returns the anonymous id generated for this session.
func (u *User) AnonymousID() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.anonymousID
}

// Traits returns a copy of the stored traits.
func (u *User) Traits() Traits {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return maps.Clone(u.traits)
}

// identify switches to id (when given) and merges traits. Switching to a
// different user discards the previous user's traits.
func (u *User) identify(id string, traits Traits) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if id != "" && id != u.id {
		if u.id != "" {
			u.traits = Traits{}
		}
		u.id = id
	}
	maps.Copy(u.traits, traits)
}

func (u *User) reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.id = ""
	u.anonymousID = uuid.NewString()
	u.traits = Traits{}
}
