package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wavegram/notify-engine/internal/service"
	"github.com/wavegram/notify-engine/pkg/response"
	"github.com/wavegram/notify-engine/pkg/validator"
)

type PreferenceHandler struct {
	preferences service.PreferenceService
}

func NewPreferenceHandler(preferences service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences}
}

func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	view, err := h.preferences.Get(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var update service.PreferenceUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	view, err := h.preferences.Update(c.Request.Context(), userID, update)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *PreferenceHandler) AddFCMToken(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	view, err := h.preferences.AddToken(c.Request.Context(), userID, req.Token)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (h *PreferenceHandler) RemoveFCMToken(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	view, err := h.preferences.RemoveToken(c.Request.Context(), userID, req.Token)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}
