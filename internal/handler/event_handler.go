package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/service"
	"github.com/wavegram/notify-engine/pkg/response"
	"github.com/wavegram/notify-engine/pkg/validator"
)

// EventHandler exposes the in-process emit call over HTTP in development
// environments only, so client teams can exercise the full delivery path
// without a running collaborator app.
type EventHandler struct {
	ingest service.IngestService
}

func NewEventHandler(ingest service.IngestService) *EventHandler {
	return &EventHandler{ingest: ingest}
}

type emitRequest struct {
	RecipientID string `json:"recipient_id" binding:"required,uuid"`
	Type        string `json:"type" binding:"required"`
	TargetType  string `json:"target_type"`
	TargetID    string `json:"target_id"`
	Text        string `json:"text"`
}

func (h *EventHandler) EmitTest(c *gin.Context) {
	senderID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req emitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	input := service.EmitInput{
		RecipientID: uuid.MustParse(req.RecipientID),
		Type:        model.NotificationType(req.Type),
		SenderID:    &senderID,
		Text:        req.Text,
	}
	if req.TargetType != "" && req.TargetID != "" {
		targetID, err := uuid.Parse(req.TargetID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_id must be a valid UUID"})
			return
		}
		input.Target = model.TargetRef{Type: model.TargetType(req.TargetType), ID: targetID}
	}

	id, err := h.ingest.Emit(c.Request.Context(), input)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if id == uuid.Nil {
		c.JSON(http.StatusOK, gin.H{"message": "event suppressed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"notification_id": id})
}
