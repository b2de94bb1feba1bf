package jobs

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"strategiq-backend/internal/artifacts"
	"strategiq-backend/internal/shared/server/middleware"
	"strategiq-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the jobs service.
type Handler struct {
	Svc   *Service
	Cache *artifacts.Cache
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, cache *artifacts.Cache) *Handler {
	return &Handler{Svc: svc, Cache: cache}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.submitAnalysis)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analyses/:id/report.pdf", h.getReportPDF)
}

type submitRequest struct {
	URL                string   `json:"url"`
	PrimaryEntity      string   `json:"primaryEntity"`
	ComparisonEntities []string `json:"comparisonEntities"`
}

func (h *Handler) submitAnalysis(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "request body must be JSON", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.Submit(ctx, SubmitInput{
		URL:                req.URL,
		PrimaryEntity:      req.PrimaryEntity,
		ComparisonEntities: req.ComparisonEntities,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), []map[string]string{
				{"field": "url", "issue": "must be an absolute http(s) url"},
			})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to submit analysis", nil)
		}
		return
	}

	respond.Accepted(c, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	if !h.Svc.AllowPoll(jobID) {
		c.Header("Retry-After", strconv.Itoa(h.Svc.PollRetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "poll_too_fast", "status polled too frequently", nil)
		return
	}

	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	resp := gin.H{
		"jobId":     job.ID,
		"status":    job.Status,
		"createdAt": job.CreatedAt,
	}

	timeline := job.Timeline
	if after, ok := parseAfter(c.Query("after")); ok {
		timeline = timelineAfter(timeline, after)
	}
	resp["timeline"] = timelineViews(timeline)

	switch {
	case job.Status == StatusCompleted && job.Result != nil:
		resp["result"] = job.Result
		h.Svc.ForgetPollSession(job.ID)
	case job.Status == StatusFailed && job.Error != nil:
		resp["error"] = job.Error
		h.Svc.ForgetPollSession(job.ID)
	default:
		resp["retryAfterMs"] = h.Svc.NextPollDelay(job.ID).Milliseconds()
	}

	respond.OK(c, resp)
}

func (h *Handler) getReportPDF(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	if job.Status != StatusCompleted || job.Result == nil {
		respond.Error(c, http.StatusConflict, "report_not_ready", "analysis has not completed", gin.H{
			"status": job.Status,
		})
		return
	}
	if h.Cache == nil {
		respond.Error(c, http.StatusServiceUnavailable, "artifacts_disabled", "report rendering is not configured", nil)
		return
	}

	data, err := h.Cache.GetOrCreate(c.Request.Context(), job.Result)
	if err != nil {
		var renderErr *artifacts.RenderError
		if errors.As(err, &renderErr) {
			respond.Error(c, http.StatusBadGateway, "render_failed", "failed to render report", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to produce report", nil)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="swot-report-`+job.ID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

// timelineView is the wire shape of a timeline entry.
type timelineView struct {
	Stage      string     `json:"stage"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

func timelineViews(entries []TimelineEntry) []timelineView {
	out := make([]timelineView, 0, len(entries))
	for _, e := range entries {
		out = append(out, timelineView{
			Stage:      e.Stage,
			StartedAt:  e.StartedAt,
			FinishedAt: e.FinishedAt,
			Detail:     e.Detail,
		})
	}
	return out
}

func parseAfter(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// timelineAfter returns entries started strictly after the cursor, so pollers
// can request only timeline news since their last poll.
func timelineAfter(entries []TimelineEntry, after time.Time) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if e.StartedAt.After(after) {
			out = append(out, e)
		}
	}
	return out
}
