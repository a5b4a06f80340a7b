package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/config"
)

const (
	// SessionCookieName is the signed cookie holding SessionData.
	SessionCookieName = "STOREFRONT_SESSION"
	// CartCookieName is the commerce platform's cart token cookie.
	CartCookieName = "cart"

	sessionMaxAge = 30 * 24 * time.Hour
	cartGIDPrefix = "gid://shopify/Cart/"
)

// SessionData is the per-visitor state kept in the signed session cookie.
type SessionData struct {
	ID            string    `json:"id"`
	Locale        string    `json:"locale,omitempty"`
	CartID        string    `json:"cart,omitempty"`
	CustomerToken string    `json:"cat,omitempty"`
	CSRFToken     string    `json:"csrf,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	// internal flags; not serialized
	dirty  bool `json:"-"`
	secure bool `json:"-"`
}

// SessionOptions configures the session middleware.
type SessionOptions struct {
	SigningKey []byte
	Secure     bool
}

// SessionOptionsFromConfig derives cookie options from configuration. Without a signing
// key a process-ephemeral one is generated, which only suits development.
func SessionOptionsFromConfig(cfg config.SessionConfig, logger *zap.Logger) SessionOptions {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := SessionOptions{Secure: cfg.Production()}
	if key := strings.TrimSpace(cfg.SigningKey); key != "" {
		opts.SigningKey = []byte(key)
		return opts
	}
	opts.SigningKey = make([]byte, 32)
	if _, err := rand.Read(opts.SigningKey); err != nil {
		logger.Error("session: failed to generate signing key", zap.Error(err))
		opts.SigningKey = []byte("insecure-dev-key-please-set-STOREFRONT_SESSION_SIGNING_KEY")
	}
	logger.Warn("session: using ephemeral signing key; set STOREFRONT_SESSION_SIGNING_KEY for production")
	return opts
}

// Session loads or initializes a session and stores it in request context. The cookie is
// rewritten just before the response headers go out whenever the session changed.
func Session(opts SessionOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sd, fromCookie := readSessionCookie(r, opts.SigningKey)
			sd.secure = opts.Secure
			if sd.ID == "" {
				sd.ID = randID()
				sd.CreatedAt = time.Now().UTC()
				sd.UpdatedAt = sd.CreatedAt
				sd.CSRFToken = newCSRFToken()
				sd.dirty = true
			}
			adoptCartCookie(r, sd)

			ctx := context.WithValue(r.Context(), ctxKeySession, sd)
			rw := newBeforeWriteWriter(w, func(w http.ResponseWriter) {
				if sd.dirty || !fromCookie {
					writeSessionCookie(w, sd, opts.SigningKey)
				}
			})
			next.ServeHTTP(rw, r.WithContext(ctx))
			// nothing written (HEAD, empty 200): persist now
			if !rw.wrote && (sd.dirty || !fromCookie) {
				writeSessionCookie(w, sd, opts.SigningKey)
			}
		})
	}
}

// GetSession returns session data from context
func GetSession(r *http.Request) *SessionData {
	if v := r.Context().Value(ctxKeySession); v != nil {
		if sd, ok := v.(*SessionData); ok {
			return sd
		}
	}
	return &SessionData{}
}

// MarkDirty flags the session for writing at end of request
func (s *SessionData) MarkDirty() { s.dirty = true; s.UpdatedAt = time.Now().UTC() }

// Commit forces the cookie to be rewritten on this response.
func (s *SessionData) Commit() { s.MarkDirty() }

// LoggedIn reports whether a customer access token is held.
func (s *SessionData) LoggedIn() bool { return s != nil && s.CustomerToken != "" }

// SignIn stores the customer token, rotating the session id on first sign-in.
func (s *SessionData) SignIn(token string) {
	if s.CustomerToken == token {
		return
	}
	wasAuthed := s.CustomerToken != ""
	s.CustomerToken = token
	if !wasAuthed && token != "" {
		s.RegenerateID()
		return
	}
	s.MarkDirty()
}

// SignOut drops the customer token and rotates the session id.
func (s *SessionData) SignOut() {
	s.CustomerToken = ""
	s.RegenerateID()
}

// RegenerateID assigns a new session ID and CSRF token to prevent fixation after auth.
func (s *SessionData) RegenerateID() {
	s.ID = randID()
	s.CSRFToken = newCSRFToken()
	s.MarkDirty()
}

// adoptCartCookie picks up a cart created outside this process.
func adoptCartCookie(r *http.Request, sd *SessionData) {
	if sd.CartID != "" {
		return
	}
	c, err := r.Cookie(CartCookieName)
	if err != nil {
		return
	}
	token := strings.TrimSpace(c.Value)
	if token == "" || strings.ContainsAny(token, "/?#") {
		return
	}
	sd.CartID = cartGIDPrefix + token
	sd.MarkDirty()
}

// readSessionCookie parses and verifies the session cookie
func readSessionCookie(r *http.Request, key []byte) (*SessionData, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return &SessionData{}, false
	}
	payload, sig, ok := strings.Cut(c.Value, ".")
	if !ok {
		return &SessionData{}, false
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return &SessionData{}, false
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return &SessionData{}, false
	}
	if !hmac.Equal(sigB, sign(key, payloadB)) {
		return &SessionData{}, false
	}
	var sd SessionData
	if err := json.Unmarshal(payloadB, &sd); err != nil {
		return &SessionData{}, false
	}
	return &sd, true
}

func writeSessionCookie(w http.ResponseWriter, sd *SessionData, key []byte) {
	b, _ := json.Marshal(sd)
	val := base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(sign(key, b))
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    val,
		Path:     "/",
		HttpOnly: true,
		Secure:   sd.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionMaxAge),
	})
}

func sign(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func randID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
