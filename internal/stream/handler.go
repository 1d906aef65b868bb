package stream

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"keyhive/internal/logger"
	"keyhive/internal/permissions"
	"keyhive/pkg/errors"
	"keyhive/pkg/logging"
)

// Handler exposes the streaming endpoint. Authentication happens upstream;
// the gateway forwards the resolved identity in headers.
type Handler struct {
	service *Service
	log     logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/projects/:projectId/events", h.SubscribeEvents)
	}
}

func (h *Handler) SubscribeEvents(c *gin.Context) {
	req, err := parseSubscribeRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	ctx := logging.WithProjectID(c.Request.Context(), req.ProjectID)

	client, err := h.service.Subscribe(ctx, req)
	if err != nil {
		h.log.WarnwCtx(ctx, "Subscribe rejected", "error", err)
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.service.Disconnect(ctx, client)
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(errors.ErrInternal))
		return
	}

	SetStreamHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx = logging.WithConnectionID(ctx, client.ID)
	stream := client.Stream()

	for {
		select {
		case <-c.Request.Context().Done():
			h.service.Disconnect(ctx, client)
			return
		case <-stream.Done():
			h.service.Disconnect(ctx, client)
			return
		case frame := <-stream.Frames():
			if err := WriteFrame(c.Writer, frame); err != nil {
				h.log.DebugwCtx(ctx, "Stream write failed", "error", err)
				h.service.Disconnect(ctx, client)
				return
			}
			flusher.Flush()
		}
	}
}

func parseSubscribeRequest(c *gin.Context) (SubscribeRequest, error) {
	req := SubscribeRequest{
		ProjectID: c.Param("projectId"),
		Actor: permissions.Actor{
			ID:    c.GetHeader("X-Actor-ID"),
			OrgID: c.GetHeader("X-Org-ID"),
		},
	}

	if register := c.Query("register"); register != "" {
		if err := json.Unmarshal([]byte(register), &req.Registrations); err != nil {
			return SubscribeRequest{}, err
		}
	}

	return req, nil
}
