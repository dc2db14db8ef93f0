package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"emailtrigger-backend/internal/trigger/dto"
	"emailtrigger-backend/internal/trigger/usecase"

	"github.com/gin-gonic/gin"
)

type TriggerHandler struct {
	triggerUsecase usecase.TriggerUsecase
}

func NewTriggerHandler(triggerUsecase usecase.TriggerUsecase) *TriggerHandler {
	return &TriggerHandler{
		triggerUsecase: triggerUsecase,
	}
}

func (h *TriggerHandler) Create(c *gin.Context) {
	userID := c.GetString("userID")

	var req dto.CreateTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.triggerUsecase.Create(userID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

func (h *TriggerHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	rules, err := h.triggerUsecase.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.TriggersResponse{Triggers: rules})
}

func (h *TriggerHandler) Get(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	rule, err := h.triggerUsecase.Get(userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

func (h *TriggerHandler) Update(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	var req dto.UpdateTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.triggerUsecase.Update(userID, id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

func (h *TriggerHandler) Delete(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	if err := h.triggerUsecase.Delete(userID, id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "trigger deleted"})
}

// TestRule dry-runs a condition against recent messages without firing actions
func (h *TriggerHandler) TestRule(c *gin.Context) {
	userID := c.GetString("userID")

	var req dto.TestTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.triggerUsecase.TestRule(userID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListOutcomes returns dispatch outcomes for the user or one of their rules
func (h *TriggerHandler) ListOutcomes(c *gin.Context) {
	userID := c.GetString("userID")
	ruleID := c.Query("rule_id")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	outcomes, err := h.triggerUsecase.ListOutcomes(userID, ruleID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OutcomesResponse{Outcomes: outcomes, Limit: limit})
}

func (h *TriggerHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
