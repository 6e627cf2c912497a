package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/clinic-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware журнала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/patients", func(r chi.Router) {
			r.Post("/", h.RegisterPatient)
			r.Get("/", h.SearchPatients)
			r.Get("/by-mobile/{mobile}", h.FindByMobile)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.PatientOverview)
				r.Get("/activity", h.DailyActivity)
				r.Post("/transactions", h.ProcessTransaction)
			})
		})

		r.Post("/families/{headID}/members", h.LinkFamilyMember)

		r.Get("/snapshot", h.Snapshot)
		r.Get("/dashboard", h.DashboardStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
