package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/depannfroid-reports/internal/export"
	"github.com/mmeshcher/depannfroid-reports/internal/model"
	"github.com/mmeshcher/depannfroid-reports/internal/report"
	"github.com/mmeshcher/depannfroid-reports/internal/repository"
	"github.com/mmeshcher/depannfroid-reports/internal/service"
	"github.com/mmeshcher/depannfroid-reports/internal/signature"
	"github.com/mmeshcher/depannfroid-reports/internal/validation"
	"github.com/mmeshcher/depannfroid-reports/internal/workflow"
)

type stubService struct {
	clients    []model.Client
	clientsErr error

	form    service.FormView
	formErr error

	submitRes  *service.SubmitResult
	submitErr  error
	submitOpts model.SendOptions

	drafts   []model.Draft
	draftErr error

	signatureData *model.SignatureRequest
	signatureErr  error
	drawnReportID string

	remoteErr error
}

func (s *stubService) Clients(ctx context.Context) ([]model.Client, error) {
	return s.clients, s.clientsErr
}

func (s *stubService) Diagnostic(notes string) string {
	return "diag:" + notes
}

func (s *stubService) Totals(lines []model.InvoiceLine) model.InvoiceSummary {
	return model.InvoiceSummary{}
}

func (s *stubService) NewForm(technician string) service.FormView {
	v := s.form
	v.Report.Technician = technician
	return v
}

func (s *stubService) GetForm(id string) (service.FormView, error) {
	return s.form, s.formErr
}

func (s *stubService) PatchForm(id string, patch []byte) (service.FormView, error) {
	return s.form, s.formErr
}

func (s *stubService) SelectClient(ctx context.Context, id, name string) (service.FormView, error) {
	return s.form, s.formErr
}

func (s *stubService) SuggestDiagnostic(id string) (service.FormView, error) {
	return s.form, s.formErr
}

func (s *stubService) AddLine(id string, kind report.LineKind) (service.FormView, error) {
	return s.form, s.formErr
}

func (s *stubService) UpdateLine(id string, index int, patch []byte) (service.FormView, error) {
	return s.form, s.formErr
}

func (s *stubService) RemoveLine(id string, index int) (service.FormView, error) {
	return s.form, s.formErr
}

func (s *stubService) Submit(ctx context.Context, id string, opts model.SendOptions) (*service.SubmitResult, error) {
	s.submitOpts = opts
	return s.submitRes, s.submitErr
}

func (s *stubService) SaveDraft(ctx context.Context, id string) (model.Draft, error) {
	return model.Draft{ID: 1}, s.draftErr
}

func (s *stubService) ListDrafts(ctx context.Context) ([]model.Draft, error) {
	return s.drafts, s.draftErr
}

func (s *stubService) ExportDrafts(ctx context.Context, w io.Writer) error {
	if s.draftErr != nil {
		return s.draftErr
	}
	_, err := w.Write([]byte("xlsx"))
	return err
}

func (s *stubService) FetchReport(ctx context.Context, reportID string) (json.RawMessage, error) {
	return json.RawMessage(`{"numeroRapport":"` + reportID + `"}`), s.remoteErr
}

func (s *stubService) SubmitDrawnSignature(ctx context.Context, reportID, dataURL string) error {
	s.drawnReportID = reportID
	return s.signatureErr
}

func (s *stubService) SignatureData(ctx context.Context, token string) (*model.SignatureRequest, error) {
	return s.signatureData, s.signatureErr
}

func (s *stubService) SubmitTypedSignature(ctx context.Context, token, name, sig string) error {
	return s.signatureErr
}

func (s *stubService) PendingInvoices(ctx context.Context) ([]model.PendingInvoice, error) {
	return []model.PendingInvoice{}, s.remoteErr
}

func (s *stubService) MarkInvoicePaid(ctx context.Context, number string) error {
	return s.remoteErr
}

type stubVerifier struct{}

func (stubVerifier) ReportID(token string) (string, error) {
	id, ok := strings.CutPrefix(token, "signed-")
	if !ok {
		return "", signature.ErrInvalidToken
	}
	return id, nil
}

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()
	return NewHandler(svc, zap.NewNop(), stubVerifier{}).SetupRouter()
}

type testResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  validation.Errors `json:"errors"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, testResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp testResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	}
	return w.Code, resp
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "validation",
			err:         validation.Errors{{Field: "client", Message: "Veuillez renseigner le nom du client"}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "Veuillez renseigner le nom du client",
		},
		{
			name:        "remote refusal",
			err:         &workflow.RemoteError{Action: workflow.ActionRunWorkflow, Message: "Quota email dépassé"},
			wantStatus:  http.StatusFailedDependency,
			wantMessage: "Quota email dépassé",
		},
		{
			name:       "transport",
			err:        errors.Join(workflow.ErrTransport, errors.New("dial tcp")),
			wantStatus: http.StatusBadGateway,
		},
		{name: "not configured", err: workflow.ErrNotConfigured, wantStatus: http.StatusServiceUnavailable},
		{name: "unknown form", err: report.ErrFormNotFound, wantStatus: http.StatusNotFound},
		{name: "busy", err: report.ErrBusy, wantStatus: http.StatusConflict},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, &stubService{submitErr: tt.err})

			status, resp := do(t, h, http.MethodPost, "/api/forms/f1/submit", `{}`)

			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, resp.Success)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, resp.Message)
			}
		})
	}
}

func TestSubmit_TransportMessageIsGeneric(t *testing.T) {
	h := newTestRouter(t, &stubService{submitErr: errors.Join(workflow.ErrTransport, errors.New("dial tcp 10.0.0.1:443"))})

	_, resp := do(t, h, http.MethodPost, "/api/forms/f1/submit", "")
	assert.NotContains(t, resp.Message, "10.0.0.1")
}

func TestSubmit_Options(t *testing.T) {
	svc := &stubService{submitRes: &service.SubmitResult{Message: "Rapport RI-2026-0042 sauvegardé !"}}
	h := newTestRouter(t, svc)

	status, resp := do(t, h, http.MethodPost, "/api/forms/f1/submit", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "Rapport RI-2026-0042 sauvegardé !", resp.Message)
	assert.Equal(t, model.DefaultSendOptions(), svc.submitOpts)

	_, _ = do(t, h, http.MethodPost, "/api/forms/f1/submit", `{"creerFacture":false}`)
	assert.Equal(t, model.SendOptions{SendReportEmail: true, SendInvoiceEmail: true}, svc.submitOpts)

	status, _ = do(t, h, http.MethodPost, "/api/forms/f1/submit", `{"creerFacture":`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFormRoutes(t *testing.T) {
	svc := &stubService{form: service.FormView{ID: "f1"}}
	h := newTestRouter(t, svc)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{method: http.MethodPost, path: "/api/forms", body: `{"technicien":"Teva"}`, want: http.StatusCreated},
		{method: http.MethodPost, path: "/api/forms", want: http.StatusCreated},
		{method: http.MethodGet, path: "/api/forms/f1", want: http.StatusOK},
		{method: http.MethodPatch, path: "/api/forms/f1", body: `{"client":"Le Lagon"}`, want: http.StatusOK},
		{method: http.MethodPatch, path: "/api/forms/f1", body: `{"client":`, want: http.StatusBadRequest},
		{method: http.MethodPost, path: "/api/forms/f1/client", body: `{"nom":"Le Lagon"}`, want: http.StatusOK},
		{method: http.MethodPost, path: "/api/forms/f1/diagnostic", want: http.StatusOK},
		{method: http.MethodPost, path: "/api/forms/f1/lines", body: `{"type":"fourniture"}`, want: http.StatusCreated},
		{method: http.MethodPatch, path: "/api/forms/f1/lines/0", body: `{"quantite":2}`, want: http.StatusOK},
		{method: http.MethodPatch, path: "/api/forms/f1/lines/x", body: `{"quantite":2}`, want: http.StatusBadRequest},
		{method: http.MethodDelete, path: "/api/forms/f1/lines/0", want: http.StatusOK},
		{method: http.MethodDelete, path: "/api/forms/f1/lines/-1", want: http.StatusBadRequest},
		{method: http.MethodPost, path: "/api/forms/f1/drafts", want: http.StatusCreated},
		{method: http.MethodPut, path: "/api/forms/f1", want: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/api/unknown", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			status, _ := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestFormErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: report.ErrLineNotFound, want: http.StatusNotFound},
		{err: service.ErrClientNotFound, want: http.StatusNotFound},
		{err: report.ErrInvalidPatch, want: http.StatusBadRequest},
		{err: report.ErrUnknownLineKind, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestRouter(t, &stubService{formErr: tt.err})
			status, resp := do(t, h, http.MethodPost, "/api/forms/f1/lines", `{"type":"service"}`)
			assert.Equal(t, tt.want, status)
			assert.False(t, resp.Success)
		})
	}
}

func TestStatelessRoutes(t *testing.T) {
	h := newTestRouter(t, &stubService{clients: []model.Client{{Name: "Le Lagon"}}})

	status, resp := do(t, h, http.MethodGet, "/api/clients", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"nom":"Le Lagon","adresse":"","telephone":"","email":"","contact":""}]`, string(resp.Data))

	status, resp = do(t, h, http.MethodPost, "/api/diagnostic", `{"notes":"fuite"}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"diagnostic":"diag:fuite"}`, string(resp.Data))

	status, _ = do(t, h, http.MethodPost, "/api/diagnostic", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, h, http.MethodPost, "/api/invoice/totals", `{"lignesFacture":[]}`)
	assert.Equal(t, http.StatusOK, status)
}

func TestDraftsExport(t *testing.T) {
	h := newTestRouter(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/drafts/export", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "brouillons.xlsx")
	assert.Equal(t, "xlsx", w.Body.String())
}

func TestSignatureRoutes(t *testing.T) {
	svc := &stubService{}
	h := newTestRouter(t, svc)

	status, _ := do(t, h, http.MethodGet, "/api/reports/RI-2026-0042/signature-link", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, h, http.MethodPost, "/api/signatures/drawn/signed-RI-2026-0042", `{"signature":"data:image/png;base64,AAAA"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "RI-2026-0042", svc.drawnReportID)

	status, _ = do(t, h, http.MethodPost, "/api/signatures/drawn/forged", `{"signature":"data:image/png;base64,AAAA"}`)
	assert.Equal(t, http.StatusNotFound, status)

	svc.signatureErr = signature.ErrEmptySignature
	status, resp := do(t, h, http.MethodPost, "/api/signatures/drawn/signed-RI-2026-0042", `{"signature":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Veuillez signer avant de valider", resp.Message)
}

func TestTypedSignatureRoutes(t *testing.T) {
	svc := &stubService{
		signatureData: &model.SignatureRequest{ReportNumber: "RI-2026-0042", ClientSignature: "Moana - M.T."},
		signatureErr:  service.ErrAlreadySigned,
	}
	h := newTestRouter(t, svc)

	status, resp := do(t, h, http.MethodGet, "/api/signatures/typed/tok-1", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(resp.Data), "RI-2026-0042")

	svc.signatureErr = validation.Errors{{Field: "nom", Message: "Veuillez entrer votre nom"}}
	status, resp = do(t, h, http.MethodPost, "/api/signatures/typed/tok-1", `{"nom":"","signature":"M.T."}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "nom", resp.Errors[0].Field)

	svc.signatureErr = nil
	status, resp = do(t, h, http.MethodPost, "/api/signatures/typed/tok-1", `{"nom":"Moana","signature":"M.T."}`)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
}

func TestInvoiceRoutes(t *testing.T) {
	svc := &stubService{}
	h := newTestRouter(t, svc)

	status, resp := do(t, h, http.MethodGet, "/api/invoices/pending", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(resp.Data))

	status, resp = do(t, h, http.MethodPost, "/api/invoices/F-2026-0003/paid", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Facture F-2026-0003 marquée payée", resp.Message)

	svc.remoteErr = &workflow.RemoteError{Action: workflow.ActionMarkInvoicePaid, Message: "Facture introuvable"}
	status, resp = do(t, h, http.MethodPost, "/api/invoices/F-2026-0003/paid", "")
	assert.Equal(t, http.StatusFailedDependency, status)
	assert.Equal(t, "Facture introuvable", resp.Message)
}

func TestEndToEnd_SubmitThroughRemoteWorkflow(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	recorded := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), calls...)
	}

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode remote request: %v", err)
		}
		action, _ := body["action"].(string)
		mu.Lock()
		calls = append(calls, action)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch action {
		case workflow.ActionFetchClients:
			_, _ = w.Write([]byte(`{"success":true,"data":[{"nom":"Hôtel Kaveka","email":"contact@kaveka.pf"}]}`))
		case workflow.ActionRunWorkflow:
			_, _ = w.Write([]byte(`{"success":true,"data":{"rapport":{"id":"RI-2026-0042"},"facture":{"id":"F-2026-0007","totalTTC":10200},"emailEnvoye":true}}`))
		default:
			_, _ = w.Write([]byte(`{"success":false,"message":"Action inconnue"}`))
		}
	}))
	defer remote.Close()

	svc := service.NewService(
		workflow.NewClient(remote.URL, 0),
		repository.NewMemoryRepository(),
		model.DefaultSettings(),
		signature.NewSigner("test-secret"),
		zap.NewNop(),
	)
	signer := signature.NewSigner("test-secret")
	h := NewHandler(svc, zap.NewNop(), signer).SetupRouter()

	status, resp := do(t, h, http.MethodPost, "/api/forms", "")
	require.Equal(t, http.StatusCreated, status)

	var form service.FormView
	require.NoError(t, json.Unmarshal(resp.Data, &form))
	base := "/api/forms/" + form.ID

	status, _ = do(t, h, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Empty(t, recorded())

	status, _ = do(t, h, http.MethodPost, base+"/client", `{"nom":"Hôtel Kaveka"}`)
	require.Equal(t, http.StatusOK, status)

	for _, kind := range []string{"service", "fourniture"} {
		status, _ = do(t, h, http.MethodPost, base+"/lines", `{"type":"`+kind+`"}`)
		require.Equal(t, http.StatusCreated, status)
	}
	status, resp = do(t, h, http.MethodPatch, base+"/lines/1", `{"description":"Filtre déshydrateur","quantite":2,"prixUnitaire":500}`)
	require.Equal(t, http.StatusOK, status)

	var withLines service.FormView
	require.NoError(t, json.Unmarshal(resp.Data, &withLines))
	require.Len(t, withLines.Lines, 2)

	status, resp = do(t, h, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(resp.Message, "Rapport RI-2026-0042 sauvegardé !\nFacture F-2026-0007 créée ("))
	assert.True(t, strings.HasSuffix(resp.Message, "\nEmail envoyé à contact@kaveka.pf"))
	assert.Equal(t, []string{workflow.ActionFetchClients, workflow.ActionRunWorkflow}, recorded())

	var submitted struct {
		SignatureToken string `json:"jetonSignature"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &submitted))
	reportID, err := signer.ReportID(submitted.SignatureToken)
	require.NoError(t, err)
	assert.Equal(t, "RI-2026-0042", reportID)

	status, _ = do(t, h, http.MethodGet, "/api/reports/SOMEONE-ELSE/signature-link", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, status)
	var after service.FormView
	require.NoError(t, json.NewDecoder(bytes.NewReader(resp.Data)).Decode(&after))
	assert.Empty(t, after.Lines)
	assert.NotEqual(t, form.Report.ReportNumber, after.Report.ReportNumber)
}
