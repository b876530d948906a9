package client

import (
	"sync"
	"time"
)

// State is the lifecycle of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session holds the signed-in user and token. It is safe for concurrent use
// and is shared by every Client it is passed to.
type Session struct {
	mu sync.RWMutex

	state        State
	token        string
	expiresAt    time.Time
	user         *User
	currentOrgID string
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	u.Memberships = append([]Membership(nil), s.user.Memberships...)
	return &u
}

// CurrentOrganization returns the selected organization id, or "" when the
// user has no memberships.
func (s *Session) CurrentOrganization() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentOrgID
}

// SetCurrentOrganization switches to one of the user's memberships.
func (s *Session) SetCurrentOrganization(orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.user == nil {
		return ErrNotAuthenticated
	}
	for _, m := range s.user.Memberships {
		if m.OrganizationID == orgID {
			s.currentOrgID = orgID
			return nil
		}
	}
	return ErrUnknownOrganization
}

// Clear drops the token and user.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticating {
		return ErrLoginInProgress
	}
	s.reset()
	s.state = StateAuthenticating
	return nil
}

func (s *Session) complete(resp *loginResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.token = resp.AccessToken
	s.expiresAt = resp.ExpiresAt
	s.user = resp.User
	s.currentOrgID = ""
	if resp.User != nil && len(resp.User.Memberships) > 0 {
		s.currentOrgID = resp.User.Memberships[0].OrganizationID
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// refreshUser replaces the stored user, keeping the current organization
// when it is still a membership.
func (s *Session) refreshUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || user == nil {
		return
	}
	s.user = user
	for _, m := range user.Memberships {
		if m.OrganizationID == s.currentOrgID {
			return
		}
	}
	s.currentOrgID = ""
	if len(user.Memberships) > 0 {
		s.currentOrgID = user.Memberships[0].OrganizationID
	}
}

func (s *Session) reset() {
	s.state = StateUnauthenticated
	s.token = ""
	s.expiresAt = time.Time{}
	s.user = nil
	s.currentOrgID = ""
}
