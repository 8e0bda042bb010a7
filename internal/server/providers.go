package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
)

func (s *Server) AdminListProviders(c *gin.Context) {
	configs, err := s.providerSvc.ListConfigs(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": configs})
}

func (s *Server) AdminConfigureProvider(c *gin.Context) {
	var req providerdomain.ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", err.Error()))
		return
	}
	req.Provider = c.Param("provider")

	summary, err := s.providerSvc.Configure(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
