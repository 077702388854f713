package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func NewRouter(handler *Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/samples", handler.CreateSample)
		r.Get("/samples", handler.ListSamples)
		r.Get("/samples/{id}", handler.GetSample)
		r.Get("/samples/by-number/{number}", handler.GetSampleByNumber)
		r.Get("/samples/by-number/{number}/finance", handler.SampleFinanceRecords)
		r.Patch("/samples/{id}/status", handler.UpdateSampleStatus)

		r.Get("/patients", handler.ListPatients)
		r.Get("/patients/{patientId}", handler.GetPatient)

		r.Get("/inventory/items", handler.ListItems)
		r.Post("/inventory/items", handler.CreateItem)
		r.Get("/inventory/items/{id}", handler.GetItem)
		r.Patch("/inventory/items/{id}", handler.PatchItem)
		r.Post("/inventory/items/{id}/restock", handler.RestockItem)
		r.Get("/inventory/items/{id}/movements", handler.ListItemMovements)
		r.Get("/inventory/summary", handler.InventorySummary)

		r.Get("/tests", handler.ListTests)
		r.Post("/tests", handler.CreateTest)
		r.Get("/tests/{id}", handler.GetTest)
		r.Delete("/tests/{id}", handler.DeleteTest)

		r.Get("/finance/records", handler.ListFinanceRecords)
		r.Get("/finance/daily-summary", handler.DailyFinanceSummary)
	})

	return r
}
