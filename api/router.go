package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/spreadwatch/spreadwatch/api/handlers"
	"github.com/spreadwatch/spreadwatch/config"
	"github.com/spreadwatch/spreadwatch/internal/quotestore"
	"github.com/spreadwatch/spreadwatch/internal/refdata"
)

func SetupRoutes(app *fiber.App, store *quotestore.Store, ref *refdata.Registry, cfg *config.Config) {
	opportunityHandler := handlers.NewOpportunityHandler(store, ref, cfg)
	priceHandler := handlers.NewPriceHandler(store, ref, cfg)

	v1 := app.Group("/v1")

	v1.Get("/opportunities", opportunityHandler.GetOpportunities)
	v1.Get("/prices/:pair", priceHandler.GetPrices)
}
