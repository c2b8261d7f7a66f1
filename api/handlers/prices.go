package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/spreadwatch/spreadwatch/config"
	"github.com/spreadwatch/spreadwatch/internal/models"
	"github.com/spreadwatch/spreadwatch/internal/quotestore"
	"github.com/spreadwatch/spreadwatch/internal/refdata"
)

type PriceHandler struct {
	store *quotestore.Store
	ref   *refdata.Registry
	cfg   *config.Config
}

func NewPriceHandler(store *quotestore.Store, ref *refdata.Registry, cfg *config.Config) *PriceHandler {
	return &PriceHandler{store: store, ref: ref, cfg: cfg}
}

// Handles GET /v1/prices/:pair. Returns the fresh quotes per exchange for one
// pair, using the short "latest prices" freshness window.
func (h *PriceHandler) GetPrices(c fiber.Ctx) error {
	symbol := c.Params("pair")
	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "pair parameter is required",
		})
	}

	if _, ok := h.ref.Pair(symbol); !ok {
		log.Warn().Str("pair", symbol).Msg("unknown pair requested")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "pair not found in reference data",
		})
	}

	quotes := make([]models.Quote, 0, 4)
	for _, q := range h.store.Snapshot(h.cfg.LatestWindow) {
		if q.Pair == symbol {
			quotes = append(quotes, q)
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"pair":    symbol,
		"max_age": h.cfg.LatestWindow.String(),
		"quotes":  quotes,
	})
}
