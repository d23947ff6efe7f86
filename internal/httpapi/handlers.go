package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dialer-platform/internal/admission"
	"dialer-platform/internal/analytics"
	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/outcome"
	"dialer-platform/internal/queue"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Queue     *queue.Service
	Campaigns *campaign.Service
	Admission *admission.Controller
	Analytics *analytics.Service
	Outcomes  *outcome.Recorder
	Audit     *audit.Service
}

// writeErr maps sentinel errors onto HTTP statuses. Unknown errors are
// 500s with a generic body; details go to the request logger only.
func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, queue.ErrNotFound),
		errors.Is(err, calls.ErrNotFound),
		errors.Is(err, outcome.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, campaign.ErrValidation):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrInvalidArgument),
		errors.Is(err, queue.ErrInvalidArgument),
		errors.Is(err, admission.ErrInvalidArgument),
		errors.Is(err, outcome.ErrInvalidArgument),
		errors.Is(err, analytics.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func tenantFrom(c *gin.Context) (string, bool) {
	tid, err := auth.TenantID(c.Request.Context())
	if err != nil || tid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tid, true
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Direct calls / jobs ---

func (h Handlers) EnqueueDirectCall(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req queue.DirectCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	job, err := h.Queue.EnqueueDirect(c.Request.Context(), tid, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

type jobPatchRequest struct {
	AgentID      *string    `json:"agent_id"`
	PhoneNumber  *string    `json:"phone_number"`
	ContactName  *string    `json:"contact_name"`
	UserData     *string    `json:"user_data"`
	Priority     *int       `json:"priority"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

func (h Handlers) UpdateJob(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req jobPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	job, err := h.Queue.Update(c.Request.Context(), tid, c.Param("job_id"), queue.JobPatch{
		AgentID:      req.AgentID,
		PhoneNumber:  req.PhoneNumber,
		ContactName:  req.ContactName,
		UserData:     req.UserData,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h Handlers) CancelJob(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	jobID := c.Param("job_id")
	cancelled, err := h.Queue.Cancel(c.Request.Context(), tid, jobID)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !cancelled {
		// Already claimed or already gone; the claim guard won.
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "job is not queued"})
		return
	}
	h.auditJobCancel(c, tid, jobID)
	c.Status(http.StatusNoContent)
}

// --- Campaigns ---

func (h Handlers) CreateCampaign(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req campaign.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	camp, err := h.Campaigns.Create(c.Request.Context(), tid, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	h.auditCampaign(c, tid, camp.ID, "created")
	c.JSON(http.StatusCreated, camp)
}

func (h Handlers) GetCampaign(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	camp, err := h.Campaigns.Get(c.Request.Context(), tid, c.Param("campaign_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (h Handlers) ListCampaigns(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.List(c.Request.Context(), tid)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

type campaignPatchRequest struct {
	Name                 *string    `json:"name"`
	AgentID              *string    `json:"agent_id"`
	FirstCallTime        *string    `json:"first_call_time"`
	LastCallTime         *string    `json:"last_call_time"`
	Timezone             *string    `json:"timezone"`
	StartDate            *time.Time `json:"start_date"`
	EndDate              *time.Time `json:"end_date"`
	MaxRetries           *int       `json:"max_retries"`
	RetryIntervalMinutes *int       `json:"retry_interval_minutes"`
	Priority             *int       `json:"priority"`
	MaxConcurrentCalls   *int       `json:"max_concurrent_calls"`
}

func (h Handlers) UpdateCampaign(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req campaignPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	camp, err := h.Campaigns.Update(c.Request.Context(), tid, c.Param("campaign_id"), campaign.Patch{
		Name:                 req.Name,
		AgentID:              req.AgentID,
		FirstCallTime:        req.FirstCallTime,
		LastCallTime:         req.LastCallTime,
		Timezone:             req.Timezone,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		MaxRetries:           req.MaxRetries,
		RetryIntervalMinutes: req.RetryIntervalMinutes,
		Priority:             req.Priority,
		MaxConcurrentCalls:   req.MaxConcurrentCalls,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, camp)
}

func (h Handlers) StartCampaign(c *gin.Context)  { h.transition(c, "start", h.Campaigns.Start) }
func (h Handlers) PauseCampaign(c *gin.Context)  { h.transition(c, "pause", h.Campaigns.Pause) }
func (h Handlers) ResumeCampaign(c *gin.Context) { h.transition(c, "resume", h.Campaigns.Resume) }
func (h Handlers) CancelCampaign(c *gin.Context) { h.transition(c, "cancel", h.Campaigns.Cancel) }

func (h Handlers) transition(c *gin.Context, name string, op func(ctx context.Context, tenantID, id string) (campaign.Campaign, error)) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	camp, err := op(c.Request.Context(), tid, c.Param("campaign_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	h.auditCampaign(c, tid, camp.ID, name)
	c.JSON(http.StatusOK, camp)
}

func (h Handlers) CampaignAnalytics(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Analytics.CampaignAnalytics(c.Request.Context(), analytics.CampaignAnalyticsRequest{
		TenantID:   tid,
		CampaignID: c.Param("campaign_id"),
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Dispatch (worker pull) ---

// ClaimNext hands the caller the next dispatchable job, or 204 when
// nothing is eligible. Workers poll this endpoint.
func (h Handlers) ClaimNext(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	claim, found, err := h.Admission.ClaimNext(c.Request.Context(), tid)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, claim)
}

type leaseRequest struct {
	LeaseToken string `json:"lease_token"`
}

func (h Handlers) ReleaseClaim(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req leaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	released, err := h.Admission.Release(c.Request.Context(), tid, c.Param("job_id"), req.LeaseToken)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !released {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "job is not processing"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) Heartbeat(c *gin.Context) {
	var req leaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	alive, err := h.Admission.Heartbeat(c.Request.Context(), c.Param("job_id"), req.LeaseToken)
	if err != nil {
		writeErr(c, err)
		return
	}
	if !alive {
		c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": "lease lost"})
		return
	}
	c.Status(http.StatusNoContent)
}

type attachCallRequest struct {
	CallID string `json:"call_id"`
}

func (h Handlers) AttachCall(c *gin.Context) {
	tid, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req attachCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CallID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	if err := h.Admission.AttachCall(c.Request.Context(), tid, c.Param("job_id"), req.CallID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Outcome webhook ---

type outcomeWebhookRequest struct {
	TenantID      string `json:"tenant_id"`
	JobID         string `json:"job_id"`
	CallID        string `json:"call_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

// CallOutcomeWebhook receives terminal call outcomes from the telephony
// collaborator.
//
// NOTE: This endpoint should be protected by provider signature validation
// in production.
func (h Handlers) CallOutcomeWebhook(c *gin.Context) {
	var req outcomeWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	job, err := h.Outcomes.Record(c.Request.Context(), req.TenantID, req.JobID, outcome.Result{
		CallID:        req.CallID,
		Status:        calls.Status(req.Status),
		FailureReason: req.FailureReason,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "status": job.Status})
}

// --- audit helpers (best-effort; never block the response) ---

func (h Handlers) auditCampaign(c *gin.Context, tenantID, campaignID, transition string) {
	if h.Audit == nil {
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := h.Audit.LogCampaignTransition(c.Request.Context(), tenantID, uid, role, campaignID, transition); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

func (h Handlers) auditJobCancel(c *gin.Context, tenantID, jobID string) {
	if h.Audit == nil {
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := h.Audit.LogJobCancelled(c.Request.Context(), tenantID, uid, role, jobID); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}
