package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

// OIDCConfig names an OAuth2 client and the provider endpoints it talks to.
// With only IssuerURL set the endpoints follow the Authentik layout.
type OIDCConfig struct {
	IssuerURL    string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	LogoutURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// SessionTTL bounds sessions whose token carries no expiry
	SessionTTL time.Duration
}

func (c *OIDCConfig) fillDefaults() {
	base := strings.TrimRight(c.IssuerURL, "/")
	if c.AuthURL == "" {
		c.AuthURL = base + "/application/o/authorize/"
	}
	if c.TokenURL == "" {
		c.TokenURL = base + "/application/o/token/"
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = base + "/application/o/userinfo/"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "profile", "email"}
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 12 * time.Hour
	}
}

// OIDC runs the authorization code flow against an OIDC provider
type OIDC struct {
	cfg      OIDCConfig
	oauth    *oauth2.Config
	sessions *SessionStore
	client   *http.Client
}

// NewOIDC builds a provider from cfg
func NewOIDC(cfg OIDCConfig, sessions *SessionStore) *OIDC {
	cfg.fillDefaults()
	return &OIDC{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		sessions: sessions,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// LoginHandler redirects to the provider with a CSRF state cookie
func (o *OIDC) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state := randomToken()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
	http.Redirect(w, r, o.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler exchanges the code, fetches the user and opens a session
func (o *OIDC) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, o.client)
	token, err := o.oauth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("OAuth token exchange failed", "error", err)
		http.Error(w, "Failed to exchange token", http.StatusBadGateway)
		return
	}
	user, err := o.userInfo(ctx, token)
	if err != nil {
		logger.Warn("Fetching user info failed", "error", err)
		http.Error(w, "Failed to get user info", http.StatusBadGateway)
		return
	}

	expires := token.Expiry
	if expires.IsZero() {
		expires = time.Now().Add(o.cfg.SessionTTL)
	}
	sess := o.sessions.Create(*user, expires)
	setSessionCookie(w, sess, r.TLS != nil)
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	logger.Info("User logged in", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler ends the session and hands off to the provider's logout page
func (o *OIDC) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	o.sessions.endSession(w, r)
	target := o.cfg.LogoutURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Authenticate resolves the session cookie
func (o *OIDC) Authenticate(r *http.Request) (*User, error) {
	return o.sessions.fromCookie(r)
}

func (o *OIDC) userInfo(ctx context.Context, token *oauth2.Token) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo: %s - %s", resp.Status, string(body))
	}

	var info struct {
		Sub               string   `json:"sub"`
		Email             string   `json:"email"`
		Name              string   `json:"name"`
		PreferredUsername string   `json:"preferred_username"`
		Groups            []string `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("userinfo: missing subject")
	}
	return &User{
		ID:       info.Sub,
		Email:    info.Email,
		Name:     info.Name,
		Username: info.PreferredUsername,
		Groups:   info.Groups,
	}, nil
}
