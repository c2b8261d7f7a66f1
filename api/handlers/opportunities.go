package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/spreadwatch/spreadwatch/config"
	"github.com/spreadwatch/spreadwatch/internal/matcher"
	"github.com/spreadwatch/spreadwatch/internal/models"
	"github.com/spreadwatch/spreadwatch/internal/quotestore"
	"github.com/spreadwatch/spreadwatch/internal/refdata"
)

type OpportunityHandler struct {
	store *quotestore.Store
	ref   *refdata.Registry
	cfg   *config.Config
}

func NewOpportunityHandler(store *quotestore.Store, ref *refdata.Registry, cfg *config.Config) *OpportunityHandler {
	return &OpportunityHandler{store: store, ref: ref, cfg: cfg}
}

// Handles GET /v1/opportunities. Runs a match pass against the current fresh
// snapshot; an empty list is a normal result, not an error.
func (h *OpportunityHandler) GetOpportunities(c fiber.Ctx) error {
	minProfit := h.cfg.MinProfitPct
	if v := c.Query("min_profit"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "min_profit must be a number",
			})
		}
		minProfit = parsed
	}

	limit := h.cfg.MaxResults
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	snapshot := h.store.Snapshot(h.cfg.MatchWindow)
	result := matcher.Match(snapshot, h.ref.Fees(), matcher.Options{
		MinProfitPct: minProfit,
		Limit:        limit,
	})
	if result.Opportunities == nil {
		result.Opportunities = []models.Opportunity{}
	}

	log.Info().
		Float64("min_profit", minProfit).
		Int("pairs_scanned", result.PairsScanned).
		Int("found", len(result.Opportunities)).
		Msg("opportunities computed")

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"opportunities":  result.Opportunities,
		"min_profit_pct": result.MinProfitPct,
		"pairs_scanned":  result.PairsScanned,
		"max_age":        h.cfg.MatchWindow.String(),
		"generated_at":   result.GeneratedAt,
	})
}
