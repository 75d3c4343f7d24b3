package server

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/betbot/botdash/internal/controlapi"
)

const (
	issuer = "botdash-controlplane"

	detailBadCredentials = "Invalid username or password"
	detailBadToken       = "Could not validate credentials"
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type authenticator struct {
	user     string
	passHash []byte
	secret   []byte
	ttl      time.Duration
}

func newAuthenticator(user, pass, secret string, ttl time.Duration) (*authenticator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		key = []byte(hex.EncodeToString(buf))
		log.Warn("JWT secret not configured, tokens will not survive a restart")
	}
	return &authenticator{user: user, passHash: hash, secret: key, ttl: ttl}, nil
}

func (a *authenticator) verify(user, pass string) bool {
	if user != a.user {
		// keep timing similar for unknown users
		_ = bcrypt.CompareHashAndPassword(a.passHash, []byte(pass+"x"))
		return false
	}
	return bcrypt.CompareHashAndPassword(a.passHash, []byte(pass)) == nil
}

func (a *authenticator) issue(user string, now time.Time) (string, error) {
	c := &claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}

func (a *authenticator) parse(raw string) (*claims, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || c.Subject != a.user {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return c, nil
}

func bearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c.Request)
		if raw == "" {
			c.Header("WWW-Authenticate", "Bearer")
			writeError(c.Writer, http.StatusUnauthorized, "Not authenticated")
			c.Abort()
			return
		}
		if _, err := s.auth.parse(raw); err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			writeError(c.Writer, http.StatusUnauthorized, detailBadToken)
			c.Abort()
			return
		}
		c.Next()
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}
	var req controlapi.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !s.auth.verify(req.Username, req.Password) {
		log.WithField("user", req.Username).Warn("login rejected")
		writeError(w, http.StatusUnauthorized, detailBadCredentials)
		return
	}
	token, err := s.auth.issue(req.Username, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.limiter.Reset(clientKey(r))
	writeJSON(w, http.StatusOK, controlapi.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.cfg.TokenTTL / time.Second),
	})
}
