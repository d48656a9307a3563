package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func NewRouter(h *Handler, mw *Middleware) http.Handler {
	mux := chi.NewRouter()
	mux.Use(mw.Log, mw.Recover, mw.Cors)

	mux.Route("/api", func(r chi.Router) {
		r.HandleFunc("/health", h.HealthHandler)

		r.Route("/invoices", func(r chi.Router) {
			r.Use(mw.APIKeyAuth)
			r.Get("/", h.Invoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.Invoice)
			r.Put("/{id}", h.UpdateInvoice)
			r.Delete("/{id}", h.DeleteInvoice)
		})

		r.Route("/income", func(r chi.Router) {
			r.Use(mw.APIKeyAuth)
			r.Get("/", h.Incomes)
			r.Post("/", h.ApplyPayment)
			r.Delete("/{id}", h.ReversePayment)
		})
	})

	return mux
}
