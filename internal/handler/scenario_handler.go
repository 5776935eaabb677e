package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"talkinghead/internal/domain"
	"talkinghead/internal/models"
	"talkinghead/internal/service"
	"talkinghead/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ScenarioHandler serves the generator's internal scenario endpoints.
type ScenarioHandler struct {
	scenarios *service.ScenarioService
	log       *zap.Logger
}

func NewScenarioHandler(scenarios *service.ScenarioService, log *zap.Logger) *ScenarioHandler {
	return &ScenarioHandler{scenarios: scenarios, log: log}
}

type registerScenarioBody struct {
	OwnerID    *uint           `json:"owner_id"`
	ListPrice  decimal.Decimal `json:"list_price"`
	Parameters json.RawMessage `json:"parameters"`
	IsFree     *bool           `json:"is_free"`
}

// Register stores a generated scenario.
// POST /internal/scenarios
func (h *ScenarioHandler) Register(c *gin.Context) {
	var body registerScenarioBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	price, err := money.FromMajor(body.ListPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "list_price: " + err.Error()})
		return
	}
	sc, err := h.scenarios.Register(service.RegisterScenarioRequest{
		OwnerID:    body.OwnerID,
		ListPrice:  price,
		Parameters: body.Parameters,
		IsFree:     body.IsFree,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, scenarioJSON(sc))
}

// Get reports a scenario's price and payment state.
// GET /internal/scenarios/:id
func (h *ScenarioHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, h.log, domain.Validationf("invalid scenario id"))
		return
	}
	sc, err := h.scenarios.Get(uint(id))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, scenarioJSON(sc))
}

func scenarioJSON(sc *models.Scenario) gin.H {
	return gin.H{
		"id":         sc.ID,
		"owner_id":   sc.OwnerID,
		"list_price": amount(sc.ListPrice),
		"is_free":    sc.IsFree,
		"is_paid":    sc.IsPaid,
	}
}
