package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/travel-approval/internal/application/service"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// ActorHeader carries the ID of the authenticated approver
const ActorHeader = "X-Actor-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	health   HealthFunc
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// DecisionRequest is the body of POST /api/requests/:id/decisions
type DecisionRequest struct {
	Role            string           `json:"role" binding:"required"`
	Action          string           `json:"action" binding:"required"`
	Signature       string           `json:"signature"`
	Comments        string           `json:"comments"`
	RejectionReason string           `json:"rejection_reason"`
	ReturnReason    string           `json:"return_reason"`
	EditedBudget    *decimal.Decimal `json:"edited_budget"`
}

// RequestDetailResponse is a request together with its decision history
type RequestDetailResponse struct {
	Request   *entity.Request           `json:"request"`
	History   []*entity.ApprovalHistory `json:"history"`
	Permitted []workflow.Trigger        `json:"permitted_actions"`
}

// ListRequestsQuery represents query parameters for listing requests
type ListRequestsQuery struct {
	Status string `form:"status" binding:"required"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ListNotificationsQuery represents query parameters for a user inbox
type ListNotificationsQuery struct {
	Unread bool `form:"unread"`
	Limit  int  `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if h.health != nil {
		results := h.health(c.Request.Context())
		resp.Components = make(map[string]string, len(results))
		for name, err := range results {
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    resp,
	})
}

// SubmitDecision handles POST /api/requests/:id/decisions
func (h *Handlers) SubmitDecision(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.Error("Invalid decision body", "request_id", id, "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid decision body",
			Code:    string(service.CodeInvalidInput),
		})
		return
	}

	result, err := h.services.Decisions.SubmitDecision(c.Request.Context(), service.Decision{
		RequestID:       id,
		ActorID:         strings.TrimSpace(c.GetHeader(ActorHeader)),
		Role:            workflow.Role(strings.ToLower(strings.TrimSpace(body.Role))),
		Action:          workflow.Trigger(strings.ToLower(strings.TrimSpace(body.Action))),
		Signature:       body.Signature,
		Comments:        body.Comments,
		RejectionReason: body.RejectionReason,
		ReturnReason:    body.ReturnReason,
		EditedBudget:    body.EditedBudget,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := h.services.Requests.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	history, err := h.services.Requests.History(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if history == nil {
		history = []*entity.ApprovalHistory{}
	}

	permitted := []workflow.Trigger{}
	if h.services.Policy != nil {
		permitted = h.services.Policy.Permitted(req.Status)
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: RequestDetailResponse{
			Request:   req,
			History:   history,
			Permitted: permitted,
		},
	})
}

// ListRequests handles GET /api/requests?status=
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
			Code:    string(service.CodeInvalidInput),
		})
		return
	}

	items, err := h.services.Requests.ListByStatus(c.Request.Context(), workflow.State(q.Status), q.Limit, q.Offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if items == nil {
		items = []*entity.Request{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    items,
	})
}

// ListNotifications handles GET /api/users/:id/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	var q ListNotificationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
			Code:    string(service.CodeInvalidInput),
		})
		return
	}

	items, err := h.services.Notifications.ListForUser(c.Request.Context(), c.Param("id"), q.Unread, q.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if items == nil {
		items = []*entity.Notification{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    items,
	})
}

func (h *Handlers) requestID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid request ID", "id", idStr)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request ID",
			Code:    string(service.CodeInvalidInput),
		})
		return 0, false
	}
	return id, true
}

// writeError maps a service failure to its HTTP status
func (h *Handlers) writeError(c *gin.Context, err error) {
	code := service.CodeOf(err)
	status := statusFor(code)

	msg := err.Error()
	var de *service.DecisionError
	if errors.As(err, &de) {
		msg = de.Message
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
		if code == "" {
			code = service.CodePersistence
		}
	}

	c.JSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    string(code),
	})
}

func statusFor(code service.Code) int {
	switch code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeUnauthorized:
		return http.StatusForbidden
	case service.CodeAlreadyProcessed:
		return http.StatusConflict
	case service.CodeInvalidInput:
		return http.StatusBadRequest
	case service.CodeTimeout, service.CodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

