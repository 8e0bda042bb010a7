package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/artline/internal/catalog/uispec"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
)

type createJobRequest struct {
	ModelID string         `json:"model_id"`
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Params  map[string]any `json:"params"`
}

func (s *Server) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid request body"))
		return
	}

	modelRef := strings.TrimSpace(req.ModelID)
	if modelRef == "" {
		modelRef = strings.TrimSpace(req.Model)
	}
	if modelRef == "" {
		AbortWithError(c, newValidationError("model_id", "model is required"))
		return
	}

	principal := currentPrincipal(c)

	input := make(map[string]any, len(req.Params)+1)
	for k, v := range req.Params {
		input[k] = v
	}
	if strings.TrimSpace(req.Prompt) != "" {
		input["prompt"] = req.Prompt
	}

	// The normalizer drops out-of-spec values silently; the edge rejects
	// them outright so nothing is debited for a request the UI could not
	// have produced.
	result, err := s.catalogSvc.GetUISpec(c.Request.Context(), modelRef, principal.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if violations := uispec.StrictViolations(result.Spec, input); len(violations) > 0 {
		AbortWithError(c, newValidationError(violations[0], "invalid value"))
		return
	}

	job, err := s.jobSvc.Create(c.Request.Context(), jobdomain.CreateJobRequest{
		Principal: principal,
		ModelRef:  modelRef,
		Input:     input,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) ListJobs(c *gin.Context) {
	var req jobdomain.ListJobsRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, newValidationError("query", "invalid pagination"))
		return
	}
	req.Feed = c.Query("feed") == "true"
	req.Curated = c.Query("curated") == "true"

	jobs, page, err := s.jobSvc.List(c.Request.Context(), currentPrincipal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":      jobs,
		"page_info": page,
	})
}

func (s *Server) GetJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	job, err := s.jobSvc.Get(c.Request.Context(), currentPrincipal(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) DeleteJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.jobSvc.Delete(c.Request.Context(), currentPrincipal(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) LikeJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	job, err := s.jobSvc.Like(c.Request.Context(), currentPrincipal(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type privacyRequest struct {
	Visibility string `json:"visibility"`
	IsCurated  *bool  `json:"is_curated"`
}

func (s *Server) SetJobPrivacy(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req privacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid request body"))
		return
	}

	update := jobdomain.PrivacyRequest{IsCurated: req.IsCurated}
	switch req.Visibility {
	case "public":
		update.IsPublic = boolPtr(true)
		update.IsPrivate = boolPtr(false)
	case "private":
		update.IsPrivate = boolPtr(true)
	case "standard":
		update.IsPrivate = boolPtr(false)
		// Unpublishing is a moderation action; an owner leaving private
		// only clears the private flag.
		if currentPrincipal(c).IsAdmin() {
			update.IsPublic = boolPtr(false)
		}
	case "":
		if req.IsCurated == nil {
			AbortWithError(c, newValidationError("visibility", "must be public, private or standard"))
			return
		}
	default:
		AbortWithError(c, newValidationError("visibility", "must be public, private or standard"))
		return
	}

	job, err := s.jobSvc.SetPrivacy(c.Request.Context(), currentPrincipal(c), id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) DownloadJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	job, err := s.jobSvc.Get(c.Request.Context(), currentPrincipal(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if job.Status != jobdomain.StatusSucceeded || job.ResultURL == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	if err := s.jobSvc.RecordView(c.Request.Context(), job.ID); err != nil {
		s.log.Warn("record view failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"url": job.ResultURL})
}

func boolPtr(b bool) *bool { return &b }
