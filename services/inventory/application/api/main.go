package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/farmstand/pkg/app"
	"github.com/ghuser/farmstand/pkg/auth"
	"github.com/ghuser/farmstand/services/inventory/application/handlers"
	appsvcs "github.com/ghuser/farmstand/services/inventory/application/services"
)

// InventoryRoutes registers the catalog, cart and order endpoints on the
// provided chi router. Cart and order creation require a session.
func InventoryRoutes(r chi.Router, a *app.Application) *appsvcs.Services {
	svcs := appsvcs.New(a)
	Mount(r, svcs, auth.RequireAuth(a.SessionStore, a.Logger))
	return svcs
}

// Mount registers the routes over explicit services. requireAuth guards every
// route that acts on the caller's own cart or orders.
func Mount(r chi.Router, svcs *appsvcs.Services, requireAuth func(http.Handler) http.Handler) {
	cart := handlers.NewCartHandler(svcs)
	orders := handlers.NewOrderHandler(svcs)

	r.Route("/items", func(r chi.Router) {
		r.Post("/", handlers.NewPostItemHandler(svcs).Execute)
		r.Get("/{itemID}", handlers.NewGetItemHandler(svcs).Execute)
		r.Delete("/{itemID}", handlers.NewDeleteItemHandler(svcs).Execute)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.Get)
			r.Delete("/", cart.Clear)
			r.Get("/summary", cart.Summary)
			r.Post("/items", cart.Add)
			r.Put("/items/{cartItemID}", cart.Update)
			r.Delete("/items/{cartItemID}", cart.Remove)
		})
		r.Post("/orders", orders.Create)
	})

	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/", orders.Get)
		r.Put("/status", orders.UpdateStatus)
	})
}
