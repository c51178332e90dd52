package ginserver

import (
	"context"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"storagepricing/internal/app/dto"
	"storagepricing/internal/domain/pricing"
)

type RuleHandler struct {
	Rules    pricing.RuleSet
	Currency string
}

func (h RuleHandler) Create(c *gin.Context) {
	var req dto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.Rules.Add(c.Request.Context(), req.ToDomain(h.Currency))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapRule(created))
}

func (h RuleHandler) Get(c *gin.Context) {
	rule, err := h.Rules.Get(c.Request.Context(), pricing.RuleID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapRule(rule))
}

func (h RuleHandler) List(c *gin.Context) {
	rules, err := h.Rules.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": dto.MapRules(rules)})
}

func (h RuleHandler) Activate(c *gin.Context) {
	h.transition(c, h.Rules.Activate)
}

func (h RuleHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.Rules.Deactivate)
}

func (h RuleHandler) Suspend(c *gin.Context) {
	h.transition(c, h.Rules.Suspend)
}

func (h RuleHandler) transition(c *gin.Context, apply func(ctx context.Context, id pricing.RuleID) error) {
	if err := apply(c.Request.Context(), pricing.RuleID(c.Param("id"))); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var _ RuleHTTP = RuleHandler{}
