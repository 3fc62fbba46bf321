package auth

import (
	"net/http"
	"time"
)

// DevUser is the identity every development login receives
var DevUser = User{
	ID:       "dev-drafter",
	Email:    "drafter@flashdraft.local",
	Name:     "Local Drafter",
	Username: "drafter",
	Groups:   []string{"drafters", "admins"},
}

// Dev logs everyone in as DevUser without a provider round trip
type Dev struct {
	sessions *SessionStore
	ttl      time.Duration
}

// NewDev creates a development provider
func NewDev(sessions *SessionStore) *Dev {
	return &Dev{sessions: sessions, ttl: 24 * time.Hour}
}

// LoginHandler opens a session immediately
func (d *Dev) LoginHandler(w http.ResponseWriter, r *http.Request) {
	sess := d.sessions.Create(DevUser, d.sessions.now().Add(d.ttl))
	setSessionCookie(w, sess, false)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// CallbackHandler has nothing to exchange
func (d *Dev) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler ends the session
func (d *Dev) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	d.sessions.endSession(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Authenticate resolves the session cookie
func (d *Dev) Authenticate(r *http.Request) (*User, error) {
	return d.sessions.fromCookie(r)
}
