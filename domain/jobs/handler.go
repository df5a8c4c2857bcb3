package jobs

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
)

// Handler handles HTTP requests for jobs
type Handler struct {
	svc *Service
}

// NewHandler creates a new jobs handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Submit handles POST /api/jobs
func (h *Handler) Submit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	resp, err := h.svc.Submit(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, resp)
}

// Get handles GET /api/jobs/:message_id
func (h *Handler) Get(c echo.Context) error {
	messageID := c.Param("message_id")
	if messageID == "" {
		return apperror.NewBadRequest("message_id is required")
	}

	job, err := h.svc.Get(c.Request().Context(), messageID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

// QueueInfo handles GET /api/queue/info
func (h *Handler) QueueInfo(c echo.Context) error {
	info, err := h.svc.QueueInfo(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, info)
}
