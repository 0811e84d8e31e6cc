package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/repository"
	"github.com/wavegram/notify-engine/internal/service"
	"github.com/wavegram/notify-engine/pkg/apperror"
	"github.com/wavegram/notify-engine/pkg/response"
)

type NotificationHandler struct {
	notifications service.NotificationService
	reads         service.ReadService
}

func NewNotificationHandler(notifications service.NotificationService, reads service.ReadService) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		reads:         reads,
	}
}

// List returns the user's notifications, newest first, filterable by
// is_read and type.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var filter repository.NotificationFilter
	if raw, ok := c.GetQuery("is_read"); ok {
		isRead := raw == "true"
		filter.IsRead = &isRead
	}
	if raw, ok := c.GetQuery("type"); ok {
		t := model.NotificationType(raw)
		if !t.Valid() {
			response.ResponseError(c, apperror.ErrInvalidInput)
			return
		}
		filter.Type = t
	}

	views, total, err := h.notifications.List(c.Request.Context(), userID, filter, page, perPage)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	response.Paginated(c, views, response.Meta{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	})
}

func (h *NotificationHandler) Get(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ResponseError(c, apperror.ErrBadRequest)
		return
	}

	view, err := h.notifications.Get(c.Request.Context(), id, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ResponseError(c, apperror.ErrBadRequest)
		return
	}

	if err := h.reads.MarkRead(c.Request.Context(), id, userID); err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	updated, err := h.reads.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all notifications marked as read", "updated_count": updated})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.reads.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ResponseError(c, apperror.ErrBadRequest)
		return
	}

	if err := h.notifications.Delete(c.Request.Context(), id, userID); err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification deleted"})
}

func (h *NotificationHandler) Grouped(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	grouped, err := h.notifications.Grouped(c.Request.Context(), userID, limit)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": grouped})
}
