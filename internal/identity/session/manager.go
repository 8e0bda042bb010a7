package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/artline/internal/config"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
)

const (
	AccessCookieName = "_at"
	GuestCookieName  = "_gid"
)

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrMissingSecret  = errors.New("auth_secret_missing")
	ErrTokenExpired   = errors.New("token_expired")
	defaultSigningAlg = jwt.SigningMethodHS256
)

// Manager issues and verifies the access-token cookie and the guest cookie.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	secure   bool
	issuer   string
	sameSite http.SameSite
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{
		secret:   []byte(cfg.AuthJWTSecret),
		ttl:      cfg.AccessTokenTTL,
		secure:   cfg.AuthCookieSecure,
		issuer:   cfg.AppName,
		sameSite: http.SameSiteLaxMode,
	}
}

type accessClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// Issue signs an access token for the user.
func (m *Manager) Issue(user *identitydomain.User, now time.Time) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	expiresAt := now.Add(m.ttl)
	claims := accessClaims{
		Tier: string(user.Tier),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(defaultSigningAlg, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse verifies a signed access token and returns the user id it names.
func (m *Manager) Parse(raw string) (snowflake.ID, error) {
	if len(m.secret) == 0 {
		return 0, ErrMissingSecret
	}
	var claims accessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != defaultSigningAlg {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}
	id, err := snowflake.ParseString(claims.Subject)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

func (m *Manager) ReadAccessToken(c *gin.Context) (string, bool) {
	return readCookie(c, AccessCookieName)
}

func (m *Manager) SetAccessToken(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(m.sameSite)
	c.SetCookie(AccessCookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) ClearAccessToken(c *gin.Context) {
	c.SetSameSite(m.sameSite)
	c.SetCookie(AccessCookieName, "", -1, "/", "", m.secure, true)
}

func (m *Manager) ReadGuestToken(c *gin.Context) (string, bool) {
	return readCookie(c, GuestCookieName)
}

func (m *Manager) SetGuestToken(c *gin.Context, value string) {
	c.SetSameSite(m.sameSite)
	// One year: the guest cookie must outlive the guest-job expiry window.
	c.SetCookie(GuestCookieName, value, int((365 * 24 * time.Hour).Seconds()), "/", "", m.secure, true)
}

func (m *Manager) ClearGuestToken(c *gin.Context) {
	c.SetSameSite(m.sameSite)
	c.SetCookie(GuestCookieName, "", -1, "/", "", m.secure, true)
}

func readCookie(c *gin.Context, name string) (string, bool) {
	value, err := c.Cookie(name)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}
