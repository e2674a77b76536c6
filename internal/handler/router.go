package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/depannfroid-reports/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса отчётов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/clients", h.GetClients)
		r.Post("/diagnostic", h.SuggestDiagnostic)
		r.Post("/invoice/totals", h.ComputeTotals)

		r.Route("/forms", func(r chi.Router) {
			r.Post("/", h.CreateForm)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetForm)
				r.Patch("/", h.PatchForm)
				r.Post("/client", h.SelectClient)
				r.Post("/diagnostic", h.SuggestFormDiagnostic)
				r.Post("/lines", h.AddLine)
				r.Patch("/lines/{index}", h.UpdateLine)
				r.Delete("/lines/{index}", h.RemoveLine)
				r.Post("/submit", h.Submit)
				r.Post("/drafts", h.SaveDraft)
			})
		})

		r.Get("/drafts", h.ListDrafts)
		r.Get("/drafts/export", h.ExportDrafts)

		r.Get("/reports/{id}", h.GetReport)

		r.Route("/signatures", func(r chi.Router) {
			r.With(custommiddleware.SignatureLink(h.links)).Post("/drawn/{token}", h.SubmitDrawnSignature)
			r.Get("/typed/{token}", h.GetSignatureData)
			r.Post("/typed/{token}", h.SubmitTypedSignature)
		})

		r.Get("/invoices/pending", h.GetPendingInvoices)
		r.Post("/invoices/{number}/paid", h.MarkInvoicePaid)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
