package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
)

type authResponse struct {
	User *identitydomain.User `json:"user"`
}

func (s *Server) Register(c *gin.Context) {
	var req identitydomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid request body"))
		return
	}

	// An existing guest cookie migrates that guest's jobs to the account.
	if token, ok := s.sessions.ReadGuestToken(c); ok {
		req.GuestToken = token
	}

	result, err := s.identitySvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.SetAccessToken(c, result.Token, result.ExpiresAt)
	s.sessions.ClearGuestToken(c)
	c.JSON(http.StatusCreated, authResponse{User: result.User})
}

func (s *Server) Login(c *gin.Context) {
	var req identitydomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid request body"))
		return
	}

	result, err := s.identitySvc.Login(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.SetAccessToken(c, result.Token, result.ExpiresAt)
	c.JSON(http.StatusOK, authResponse{User: result.User})
}

func (s *Server) Logout(c *gin.Context) {
	s.sessions.ClearAccessToken(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GuestInit(c *gin.Context) {
	// An already-resolved guest keeps its identity and balance.
	if guest := currentGuest(c); guest != nil {
		c.JSON(http.StatusOK, gin.H{
			"guest_id": guest.ID.String(),
			"balance":  guest.Balance,
		})
		return
	}

	guest, err := s.identitySvc.InitGuest(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.sessions.SetGuestToken(c, guest.Token)

	c.JSON(http.StatusCreated, gin.H{
		"guest_id": guest.ID.String(),
		"balance":  guest.Balance,
	})
}

func (s *Server) Me(c *gin.Context) {
	principal := currentPrincipal(c)

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), s.db, principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"is_guest": principal.IsGuest(),
		"balance":  balance,
	}
	if user := currentUser(c); user != nil {
		resp["user"] = user
	}
	if guest := currentGuest(c); guest != nil {
		resp["guest_id"] = guest.ID.String()
	}
	c.JSON(http.StatusOK, resp)
}
