package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/progression-engine/internal/platform/logger"
	"github.com/yungbote/progression-engine/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/me/events streams the caller's progression transitions.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	learnerID, ok := requireLearner(c)
	if !ok {
		return
	}
	client := h.hub.NewClient(learnerID)
	h.hub.AddChannel(client, realtime.LearnerChannel(learnerID))
	h.log.Debug("event stream open", "learner_id", learnerID, "client_id", client.ID)
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.log.Debug("event stream closed", "learner_id", learnerID, "client_id", client.ID)
}
