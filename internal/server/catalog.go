package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/catalog/uispec"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"github.com/smallbiznis/artline/internal/pricing"
)

type modelSummary struct {
	ID           string               `json:"id"`
	Slug         string               `json:"slug"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Kind         string               `json:"kind"`
	Provider     string               `json:"provider"`
	CoverImage   string               `json:"cover_image,omitempty"`
	Credits      int64                `json:"credits"`
	Inputs       []uispec.UIParameter `json:"inputs"`
	Defaults     map[string]any       `json:"defaults"`
	Capabilities []string             `json:"capabilities"`
}

func (s *Server) ListModels(c *gin.Context) {
	var req catalogdomain.ListModelsRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, newValidationError("query", "invalid pagination"))
		return
	}
	if kind := c.Query("kind"); kind != "" {
		parsed, ok := catalogdomain.ParseKind(kind)
		if !ok {
			AbortWithError(c, newValidationError("kind", "unknown model kind"))
			return
		}
		req.Kind = parsed
	}

	models, page, err := s.catalogSvc.ListModels(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]modelSummary, 0, len(models))
	for i := range models {
		items = append(items, s.summarize(&models[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"models":    items,
		"page_info": page,
	})
}

// summarize renders the public catalog card: inputs resolved at the starter
// tier so the listing never leaks gated parameters.
func (s *Server) summarize(model *catalogdomain.AIModel) modelSummary {
	spec := uispec.Resolve(model.Slug, model.RawSchema, model.UIConfig, identitydomain.TierStarter)

	defaults := make(map[string]any)
	for _, p := range spec.Parameters {
		if p.Default != nil {
			defaults[p.ID] = p.Default
		}
	}

	return modelSummary{
		ID:           model.ID.String(),
		Slug:         model.Slug,
		Name:         model.Name,
		Description:  model.Description,
		Kind:         string(model.Kind),
		Provider:     model.ProviderModel,
		CoverImage:   model.CoverImageURL,
		Credits:      pricing.BaseCost(model),
		Inputs:       spec.Parameters,
		Defaults:     defaults,
		Capabilities: []string{string(model.Kind)},
	}
}

func (s *Server) GetModelUISpec(c *gin.Context) {
	tier := identitydomain.TierStarter
	if user := currentUser(c); user != nil {
		tier = user.Tier
	}

	result, err := s.catalogSvc.GetUISpec(c.Request.Context(), c.Param("id"), tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) AdminListModels(c *gin.Context) {
	var req catalogdomain.ListModelsRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, newValidationError("query", "invalid pagination"))
		return
	}
	req.IncludeInactive = true

	models, page, err := s.catalogSvc.ListModels(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"models":    models,
		"page_info": page,
	})
}

func (s *Server) AdminCreateModel(c *gin.Context) {
	var req catalogdomain.CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid request body"))
		return
	}

	model, err := s.catalogSvc.CreateModel(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model)
}

func (s *Server) AdminUpdateModel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req catalogdomain.UpdateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid request body"))
		return
	}

	model, err := s.catalogSvc.UpdateModel(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func (s *Server) AdminDeleteModel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.catalogSvc.DeleteModel(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (s *Server) AdminRefreshModelSchema(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	model, err := s.catalogSvc.RefreshSchema(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(param))
	if err != nil {
		AbortWithError(c, newValidationError(param, "invalid id"))
		return 0, false
	}
	return id, true
}
