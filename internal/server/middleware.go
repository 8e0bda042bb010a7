package server

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
)

const (
	principalKey = "artline.principal"
	userKey      = "artline.user"
	guestKey     = "artline.guest"

	requestIDHeader = "X-Request-ID"
)

// RequestID echoes or mints a request id for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Set(requestIDHeader, id)
		c.Next()
	}
}

// ResolvePrincipal attaches the caller's identity to the context: a user when
// the access cookie verifies, otherwise the guest named by the guest cookie.
// No identity is not an error here; gated routes layer their own checks.
func (s *Server) ResolvePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if raw, ok := s.sessions.ReadAccessToken(c); ok {
			userID, err := s.sessions.Parse(raw)
			if err == nil {
				user, uerr := s.identitySvc.GetUser(ctx, userID)
				if uerr == nil {
					c.Set(userKey, user)
					c.Set(principalKey, identitydomain.UserPrincipal(user.ID, user.Tier))
					c.Next()
					return
				}
			}
			// A dead session cookie should not poison guest access.
			s.sessions.ClearAccessToken(c)
		}

		if token, ok := s.sessions.ReadGuestToken(c); ok {
			guest, err := s.identitySvc.ResolveGuest(ctx, token)
			if err == nil {
				c.Set(guestKey, guest)
				c.Set(principalKey, identitydomain.GuestPrincipal(guest.ID))
			} else if !errors.Is(err, identitydomain.ErrNotFound) {
				s.log.Warn("guest resolve failed", zap.Error(err))
			}
		}

		c.Next()
	}
}

// EnsurePrincipal auto-provisions a guest when the request carries no
// identity at all. First contact mints the guest row and its cookie.
func (s *Server) EnsurePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(principalKey); ok {
			c.Next()
			return
		}

		guest, err := s.identitySvc.InitGuest(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		s.sessions.SetGuestToken(c, guest.Token)
		c.Set(guestKey, guest)
		c.Set(principalKey, identitydomain.GuestPrincipal(guest.ID))
		c.Next()
	}
}

// AuthRequired gates routes that need a registered user.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(userKey); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// AdminRequired gates the operator surface.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := currentPrincipal(c)
		if !principal.IsAdmin() {
			if principal.ID() == 0 {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) identitydomain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(identitydomain.Principal); ok {
			return p
		}
	}
	return identitydomain.Principal{}
}

func currentUser(c *gin.Context) *identitydomain.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*identitydomain.User); ok {
			return u
		}
	}
	return nil
}

func currentGuest(c *gin.Context) *identitydomain.Guest {
	if v, ok := c.Get(guestKey); ok {
		if g, ok := v.(*identitydomain.Guest); ok {
			return g
		}
	}
	return nil
}
