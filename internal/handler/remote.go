package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/depannfroid-reports/internal/export"
	"github.com/mmeshcher/depannfroid-reports/internal/middleware"
	"github.com/mmeshcher/depannfroid-reports/internal/service"
)

// ExportDrafts отдаёт черновики в виде книги XLSX.
func (h *Handler) ExportDrafts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportDrafts(r.Context(), &buf); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="brouillons.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("write export", zap.Error(err))
	}
}

// GetReport возвращает отчёт из удалённой системы.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.FetchReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, data)
}

type drawnSignatureRequest struct {
	Signature string `json:"signature"`
}

// SubmitDrawnSignature принимает нарисованную подпись по подписанной ссылке.
func (h *Handler) SubmitDrawnSignature(w http.ResponseWriter, r *http.Request) {
	reportID, ok := middleware.ReportIDFromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
		return
	}

	var req drawnSignatureRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.badRequest(w)
		return
	}

	if err := h.service.SubmitDrawnSignature(r.Context(), reportID, req.Signature); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Signature enregistrée"})
}

// GetSignatureData возвращает данные отчёта для страницы текстовой подписи.
func (h *Handler) GetSignatureData(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.SignatureData(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, service.ErrAlreadySigned) {
		h.writeJSON(w, http.StatusConflict, envelope{Message: "Ce rapport a déjà été signé", Data: data})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, data)
}

type typedSignatureRequest struct {
	Name      string `json:"nom"`
	Signature string `json:"signature"`
}

// SubmitTypedSignature принимает текстовую подпись.
func (h *Handler) SubmitTypedSignature(w http.ResponseWriter, r *http.Request) {
	var req typedSignatureRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.badRequest(w)
		return
	}

	if err := h.service.SubmitTypedSignature(r.Context(), chi.URLParam(r, "token"), req.Name, req.Signature); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Rapport signé, merci !"})
}

// GetPendingInvoices возвращает неоплаченные счета.
func (h *Handler) GetPendingInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.PendingInvoices(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, invoices)
}

// MarkInvoicePaid отмечает счёт как оплаченный.
func (h *Handler) MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if err := h.service.MarkInvoicePaid(r.Context(), number); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Facture " + number + " marquée payée"})
}
