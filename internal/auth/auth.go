// Package auth gates the draft API behind a cookie session. Sessions come
// from an OAuth2/OIDC login or, in development, from a fixed local user.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

const (
	sessionCookie = "flashdraft_session"
	stateCookie   = "flashdraft_oauth_state"
)

var (
	// ErrUnauthenticated is returned when a request carries no live session
	ErrUnauthenticated = errors.New("not authenticated")
)

// User is the identity attached to a session
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Username string   `json:"username,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// InGroup reports whether the user belongs to group
func (u *User) InGroup(group string) bool {
	return u != nil && slices.Contains(u.Groups, group)
}

// Session binds a cookie value to a user until it expires
type Session struct {
	ID        string
	User      User
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Provider is implemented by every login backend
type Provider interface {
	LoginHandler(w http.ResponseWriter, r *http.Request)
	CallbackHandler(w http.ResponseWriter, r *http.Request)
	LogoutHandler(w http.ResponseWriter, r *http.Request)
	Authenticate(r *http.Request) (*User, error)
}

// SessionStore keeps sessions in process memory
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]Session), now: time.Now}
}

// Create starts a session for user that ends at expires
func (s *SessionStore) Create(user User, expires time.Time) Session {
	sess := Session{
		ID:        randomToken(),
		User:      user,
		CreatedAt: s.now(),
		ExpiresAt: expires,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Lookup returns the live session for id; expired sessions are dropped
func (s *SessionStore) Lookup(id string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if s.now().After(sess.ExpiresAt) {
		s.Remove(id)
		return Session{}, false
	}
	return sess, true
}

// Remove ends a session
func (s *SessionStore) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep drops every expired session and returns how many went
func (s *SessionStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// fromCookie resolves the session cookie on r
func (s *SessionStore) fromCookie(r *http.Request) (*User, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	sess, ok := s.Lookup(cookie.Value)
	if !ok {
		return nil, ErrUnauthenticated
	}
	user := sess.User
	return &user, nil
}

// endSession removes the session named by the request cookie and clears it
func (s *SessionStore) endSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.Remove(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func setSessionCookie(w http.ResponseWriter, sess Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

type userKey struct{}

// WithUser returns a context carrying user
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the authenticated user stored on ctx
func UserFrom(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey{}).(*User)
	return user, ok && user != nil
}

// Require rejects requests without a live session with a 401 JSON body
func Require(p Provider, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := p.Authenticate(r)
		if err != nil {
			logger.Debug("Rejected unauthenticated request", "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// MeHandler returns the user behind the current session
func MeHandler(p Provider) http.HandlerFunc {
	return Require(p, func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFrom(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(user)
	})
}

func randomToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
