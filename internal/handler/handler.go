// Package handler содержит HTTP-обработчики API сервиса отчётов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/depannfroid-reports/internal/middleware"
	"github.com/mmeshcher/depannfroid-reports/internal/model"
	"github.com/mmeshcher/depannfroid-reports/internal/report"
	"github.com/mmeshcher/depannfroid-reports/internal/service"
	"github.com/mmeshcher/depannfroid-reports/internal/signature"
	"github.com/mmeshcher/depannfroid-reports/internal/validation"
	"github.com/mmeshcher/depannfroid-reports/internal/workflow"
)

const maxBodyBytes = 4 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Clients(ctx context.Context) ([]model.Client, error)
	Diagnostic(notes string) string
	Totals(lines []model.InvoiceLine) model.InvoiceSummary

	NewForm(technician string) service.FormView
	GetForm(id string) (service.FormView, error)
	PatchForm(id string, patch []byte) (service.FormView, error)
	SelectClient(ctx context.Context, id, name string) (service.FormView, error)
	SuggestDiagnostic(id string) (service.FormView, error)
	AddLine(id string, kind report.LineKind) (service.FormView, error)
	UpdateLine(id string, index int, patch []byte) (service.FormView, error)
	RemoveLine(id string, index int) (service.FormView, error)
	Submit(ctx context.Context, id string, opts model.SendOptions) (*service.SubmitResult, error)

	SaveDraft(ctx context.Context, id string) (model.Draft, error)
	ListDrafts(ctx context.Context) ([]model.Draft, error)
	ExportDrafts(ctx context.Context, w io.Writer) error

	FetchReport(ctx context.Context, reportID string) (json.RawMessage, error)
	SubmitDrawnSignature(ctx context.Context, reportID, dataURL string) error
	SignatureData(ctx context.Context, token string) (*model.SignatureRequest, error)
	SubmitTypedSignature(ctx context.Context, token, name, sig string) error

	PendingInvoices(ctx context.Context) ([]model.PendingInvoice, error)
	MarkInvoicePaid(ctx context.Context, number string) error
}

// Handler реализует HTTP-обработчики API сервиса отчётов.
type Handler struct {
	service Service
	logger  *zap.Logger
	links   middleware.TokenVerifier
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, links middleware.TokenVerifier) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		links:   links,
	}
}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) ok(w http.ResponseWriter, status int, data any) {
	h.writeJSON(w, status, envelope{Success: true, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeError переводит ошибку в HTTP-статус и сообщение для пользователя.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs  validation.Errors
		remote *workflow.RemoteError
	)

	switch {
	case errors.As(err, &verrs):
		h.writeJSON(w, http.StatusUnprocessableEntity, envelope{Message: verrs.Error(), Errors: verrs})
	case errors.As(err, &remote):
		h.logger.Warn("remote workflow refused",
			zap.String("action", remote.Action),
			zap.String("path", r.URL.Path),
			zap.String("message", remote.Message),
		)
		h.fail(w, http.StatusFailedDependency, remote.Message)
	case errors.Is(err, workflow.ErrNotConfigured):
		h.fail(w, http.StatusServiceUnavailable, "Service distant non configuré")
	case errors.Is(err, workflow.ErrTransport):
		h.logger.Error("remote workflow unreachable", zap.String("path", r.URL.Path), zap.Error(err))
		h.fail(w, http.StatusBadGateway, "Service distant injoignable, veuillez réessayer")
	case errors.Is(err, report.ErrFormNotFound):
		h.fail(w, http.StatusNotFound, "Formulaire introuvable")
	case errors.Is(err, report.ErrLineNotFound):
		h.fail(w, http.StatusNotFound, "Ligne de facture introuvable")
	case errors.Is(err, service.ErrClientNotFound):
		h.fail(w, http.StatusNotFound, "Client introuvable")
	case errors.Is(err, report.ErrBusy):
		h.fail(w, http.StatusConflict, "Envoi déjà en cours")
	case errors.Is(err, service.ErrAlreadySigned):
		h.fail(w, http.StatusConflict, "Ce rapport a déjà été signé")
	case errors.Is(err, report.ErrInvalidPatch), errors.Is(err, report.ErrUnknownLineKind):
		h.fail(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
	case errors.Is(err, signature.ErrEmptySignature):
		h.fail(w, http.StatusUnprocessableEntity, "Veuillez signer avant de valider")
	case errors.Is(err, signature.ErrInvalidImage):
		h.fail(w, http.StatusUnprocessableEntity, "Signature invalide")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.fail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// decodeJSON разбирает тело запроса в v. Пустое тело допустимо, если allowEmpty.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("invalid json")
	}
	return body, nil
}

func (h *Handler) badRequest(w http.ResponseWriter) {
	h.fail(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
}

// GetClients возвращает справочник клиентов.
func (h *Handler) GetClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.Clients(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, clients)
}

type diagnosticRequest struct {
	Notes string `json:"notes"`
}

type diagnosticResponse struct {
	Diagnostic string `json:"diagnostic"`
}

// SuggestDiagnostic предлагает диагноз по произвольным заметкам.
func (h *Handler) SuggestDiagnostic(w http.ResponseWriter, r *http.Request) {
	var req diagnosticRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.badRequest(w)
		return
	}
	h.ok(w, http.StatusOK, diagnosticResponse{Diagnostic: h.service.Diagnostic(req.Notes)})
}

type totalsRequest struct {
	Lines []model.InvoiceLine `json:"lignesFacture"`
}

// ComputeTotals считает итоги для переданных строк счёта.
func (h *Handler) ComputeTotals(w http.ResponseWriter, r *http.Request) {
	var req totalsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.badRequest(w)
		return
	}
	h.ok(w, http.StatusOK, h.service.Totals(req.Lines))
}

type newFormRequest struct {
	Technician string `json:"technicien"`
}

// CreateForm открывает новую форму отчёта.
func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	var req newFormRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.badRequest(w)
		return
	}
	h.ok(w, http.StatusCreated, h.service.NewForm(req.Technician))
}

// GetForm возвращает форму с итогами.
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetForm(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

// PatchForm применяет частичное изменение отчёта.
func (h *Handler) PatchForm(w http.ResponseWriter, r *http.Request) {
	patch, err := readBody(r)
	if err != nil {
		h.badRequest(w)
		return
	}

	v, err := h.service.PatchForm(chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

type selectClientRequest struct {
	Name string `json:"nom"`
}

// SelectClient заполняет данные клиента из справочника.
func (h *Handler) SelectClient(w http.ResponseWriter, r *http.Request) {
	var req selectClientRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.badRequest(w)
		return
	}

	v, err := h.service.SelectClient(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

// SuggestFormDiagnostic заполняет диагноз формы по констатации на месте.
func (h *Handler) SuggestFormDiagnostic(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.SuggestDiagnostic(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

type addLineRequest struct {
	Kind report.LineKind `json:"type"`
}

// AddLine добавляет строку счёта.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.badRequest(w)
		return
	}

	v, err := h.service.AddLine(chi.URLParam(r, "id"), req.Kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, v)
}

func lineIndex(r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// UpdateLine изменяет строку счёта.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndex(r)
	if !ok {
		h.badRequest(w)
		return
	}

	patch, err := readBody(r)
	if err != nil {
		h.badRequest(w)
		return
	}

	v, err := h.service.UpdateLine(chi.URLParam(r, "id"), index, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

// RemoveLine удаляет строку счёта.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndex(r)
	if !ok {
		h.badRequest(w)
		return
	}

	v, err := h.service.RemoveLine(chi.URLParam(r, "id"), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

// Submit отправляет отчёт в удалённую систему.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	opts := model.DefaultSendOptions()
	if err := decodeJSON(r, &opts, true); err != nil {
		h.badRequest(w)
		return
	}

	res, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: res.Message, Data: res})
}

// SaveDraft сохраняет черновик формы.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.SaveDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, d)
}

// ListDrafts возвращает сохранённые черновики.
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.service.ListDrafts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, drafts)
}
