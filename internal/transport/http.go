package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marketmitra/stockly/internal/auth"
	"github.com/marketmitra/stockly/internal/handler"
	"github.com/marketmitra/stockly/internal/order"
	"github.com/marketmitra/stockly/internal/product"
)

func NewRouter(orderSvc order.Service, productSvc product.Service, tm *auth.TokenManager) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	orderHandler := handler.NewOrderHandler(orderSvc)
	productHandler := handler.NewProductHandler(productSvc)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", productHandler.ListProducts)
		r.Get("/{id}", productHandler.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(tm.Authenticate, auth.RequireAdmin)
			r.Post("/", productHandler.CreateProduct)
			r.Put("/{id}", productHandler.UpdateProduct)
			r.Delete("/{id}", productHandler.DeleteProduct)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/create", orderHandler.CreateOrder)
		r.Post("/verify", orderHandler.VerifyPayment)
		r.Post("/send-confirmation", orderHandler.SendConfirmation)
		r.Get("/user/{userId}", orderHandler.ListUserOrders)
		r.Get("/{id}", orderHandler.GetOrder)
		r.Post("/{orderId}/notes", orderHandler.AddNote)

		r.Group(func(r chi.Router) {
			r.Use(tm.Authenticate)
			r.Post("/{id}/retry", orderHandler.RetryPayment)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/", orderHandler.ListOrders)
				r.Get("/admin", orderHandler.ListOrders)
				r.Patch("/{id}/status", orderHandler.UpdateDeliveryStatus)
				r.Delete("/{id}", orderHandler.DeleteOrder)
			})
		})
	})

	return r
}
