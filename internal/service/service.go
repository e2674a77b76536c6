// Package service реализует бизнес-логику сервиса отчётов о вмешательствах.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/depannfroid-reports/internal/diagnostic"
	"github.com/mmeshcher/depannfroid-reports/internal/export"
	"github.com/mmeshcher/depannfroid-reports/internal/invoice"
	"github.com/mmeshcher/depannfroid-reports/internal/model"
	"github.com/mmeshcher/depannfroid-reports/internal/report"
	"github.com/mmeshcher/depannfroid-reports/internal/signature"
	"github.com/mmeshcher/depannfroid-reports/internal/validation"
)

// formTTL время, после которого неизменявшаяся форма удаляется из памяти.
const formTTL = 24 * time.Hour

var (
	// ErrClientNotFound возвращается, если клиента нет в справочнике.
	ErrClientNotFound = errors.New("client not found")
	// ErrAlreadySigned возвращается, если отчёт уже подписан клиентом.
	ErrAlreadySigned = errors.New("report already signed")
)

// Workflow описывает удалённую систему, которая хранит отчёты, счета и подписи.
type Workflow interface {
	FetchClients(ctx context.Context) ([]model.Client, error)
	RunWorkflow(ctx context.Context, sub model.Submission) (*model.WorkflowResult, error)
	FetchReport(ctx context.Context, reportID string) (json.RawMessage, error)
	SaveSignature(ctx context.Context, reportID, image string) error
	FetchPendingInvoices(ctx context.Context) ([]model.PendingInvoice, error)
	MarkInvoicePaid(ctx context.Context, number string) error
	FetchSignatureData(ctx context.Context, token string) (*model.SignatureRequest, error)
	SignReport(ctx context.Context, token, signature string) error
}

// DraftRepository описывает хранилище черновиков.
type DraftRepository interface {
	Close() error
	SaveDraft(ctx context.Context, d model.Draft) (model.Draft, error)
	ListDrafts(ctx context.Context) ([]model.Draft, error)
}

// FormView содержит форму вместе с её идентификатором и итогами счёта.
type FormView struct {
	ID string `json:"id"`
	report.Form
	Summary model.InvoiceSummary `json:"totaux"`
}

// SubmitResult описывает успешную отправку отчёта.
// SignatureToken выдаётся только здесь, для отчёта, который создала удалённая система.
type SubmitResult struct {
	Message        string                `json:"message"`
	Result         *model.WorkflowResult `json:"resultat"`
	Form           FormView              `json:"formulaire"`
	SignatureToken string                `json:"jetonSignature,omitempty"`
}

// Service содержит бизнес-логику сервиса отчётов.
type Service struct {
	workflow Workflow
	drafts   DraftRepository
	forms    *report.Store
	init     *report.Initializer
	calc     *invoice.Calculator
	signer   *signature.Signer
	logger   *zap.Logger

	mu            sync.RWMutex
	clients       []model.Client
	clientsLoaded bool
}

// NewService создаёт сервис с удалённой системой, хранилищем черновиков и параметрами предприятия.
func NewService(wf Workflow, drafts DraftRepository, settings model.Settings, signer *signature.Signer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		workflow: wf,
		drafts:   drafts,
		forms:    report.NewStore(),
		init:     report.NewInitializer(settings),
		calc:     invoice.NewCalculator(settings.Rates),
		signer:   signer,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.drafts != nil {
		return s.drafts.Close()
	}
	return nil
}

func (s *Service) view(id string, f report.Form) FormView {
	return FormView{ID: id, Form: f, Summary: f.Summary(s.calc)}
}

// Totals считает итоги счёта для произвольного набора строк.
func (s *Service) Totals(lines []model.InvoiceLine) model.InvoiceSummary {
	return s.calc.Compute(lines)
}

// Diagnostic предлагает текст диагноза по заметкам техника.
func (s *Service) Diagnostic(notes string) string {
	return diagnostic.Suggest(notes)
}

// NewForm открывает новую форму. Пустое имя техника заменяется значением по умолчанию.
func (s *Service) NewForm(technician string) FormView {
	f := s.init.New(strings.TrimSpace(technician))
	return s.view(s.forms.Create(f), f)
}

// GetForm возвращает форму по идентификатору.
func (s *Service) GetForm(id string) (FormView, error) {
	f, err := s.forms.Get(id)
	if err != nil {
		return FormView{}, err
	}
	return s.view(id, f), nil
}

func (s *Service) update(id string, fn func(report.Form) (report.Form, error)) (FormView, error) {
	f, err := s.forms.Update(id, fn)
	if err != nil {
		return FormView{}, err
	}
	return s.view(id, f), nil
}

// PatchForm применяет частичное изменение отчёта (JSON merge).
func (s *Service) PatchForm(id string, patch []byte) (FormView, error) {
	return s.update(id, func(f report.Form) (report.Form, error) {
		return f.Apply(patch)
	})
}

// SelectClient заполняет данные клиента из справочника.
// Если клиент не найден в кэше, справочник перечитывается один раз.
func (s *Service) SelectClient(ctx context.Context, id, name string) (FormView, error) {
	c, ok := s.findClient(name)
	if !ok {
		if err := s.RefreshClients(ctx); err != nil {
			return FormView{}, err
		}
		if c, ok = s.findClient(name); !ok {
			return FormView{}, fmt.Errorf("%w: %s", ErrClientNotFound, name)
		}
	}

	return s.update(id, func(f report.Form) (report.Form, error) {
		return f.SelectClient(c), nil
	})
}

// SuggestDiagnostic заполняет диагноз по констатации на месте.
func (s *Service) SuggestDiagnostic(id string) (FormView, error) {
	return s.update(id, func(f report.Form) (report.Form, error) {
		return f.SuggestDiagnostic(), nil
	})
}

// AddLine добавляет строку счёта указанного вида.
func (s *Service) AddLine(id string, kind report.LineKind) (FormView, error) {
	line, err := s.init.Line(kind)
	if err != nil {
		return FormView{}, err
	}
	return s.update(id, func(f report.Form) (report.Form, error) {
		return f.AddLine(line), nil
	})
}

// UpdateLine изменяет строку счёта по индексу.
func (s *Service) UpdateLine(id string, index int, patch []byte) (FormView, error) {
	return s.update(id, func(f report.Form) (report.Form, error) {
		return f.UpdateLine(index, patch)
	})
}

// RemoveLine удаляет строку счёта по индексу.
func (s *Service) RemoveLine(id string, index int) (FormView, error) {
	return s.update(id, func(f report.Form) (report.Form, error) {
		return f.RemoveLine(index)
	})
}

// Submit проверяет форму и отправляет её в удалённую систему одним вызовом.
// При успехе форма сбрасывается, при любой ошибке остаётся без изменений.
func (s *Service) Submit(ctx context.Context, id string, opts model.SendOptions) (*SubmitResult, error) {
	f, err := s.forms.Acquire(id)
	if err != nil {
		return nil, err
	}

	var next *report.Form
	defer func() { s.forms.Release(id, next) }()

	if err := validation.Submission(f.Report, opts); err != nil {
		return nil, err
	}

	sub := model.Submission{
		Report:  f.Report,
		Lines:   f.Lines,
		Options: opts,
	}
	if opts.CreateInvoice {
		summary := f.Summary(s.calc)
		sub.Summary = &summary
	}

	res, err := s.workflow.RunWorkflow(ctx, sub)
	if err != nil {
		s.logger.Warn("workflow failed",
			zap.String("form_id", id),
			zap.String("report_number", f.Report.ReportNumber),
			zap.Error(err),
		)
		return nil, err
	}

	reset := s.init.Reset(f)
	next = &reset

	s.logger.Info("report submitted",
		zap.String("form_id", id),
		zap.String("report_id", string(res.Report.ID)),
		zap.Bool("invoice", res.Invoice != nil),
		zap.Bool("email_sent", res.EmailSent),
	)

	result := &SubmitResult{
		Message: successMessage(res, sub),
		Result:  res,
		Form:    s.view(id, reset),
	}
	if res.Report.ID != "" {
		result.SignatureToken = s.signer.Token(string(res.Report.ID))
	}
	return result, nil
}

func successMessage(res *model.WorkflowResult, sub model.Submission) string {
	lines := []string{fmt.Sprintf("Rapport %s sauvegardé !", res.Report.ID)}

	if res.Invoice != nil {
		total := res.Invoice.TotalTTC.Value
		if !res.Invoice.TotalTTC.Valid && sub.Summary != nil {
			total = sub.Summary.TotalTTC
		}
		lines = append(lines, fmt.Sprintf("Facture %s créée (%s)", res.Invoice.ID, invoice.FormatXPF(total)))
	}

	if res.EmailSent {
		lines = append(lines, fmt.Sprintf("Email envoyé à %s", strings.TrimSpace(sub.Report.Email)))
	}

	return strings.Join(lines, "\n")
}

// SaveDraft сохраняет снимок формы как черновик.
func (s *Service) SaveDraft(ctx context.Context, id string) (model.Draft, error) {
	f, err := s.forms.Get(id)
	if err != nil {
		return model.Draft{}, err
	}

	return s.drafts.SaveDraft(ctx, model.Draft{
		ReportNumber: f.Report.ReportNumber,
		Report:       f.Report,
		Lines:        f.Lines,
	})
}

// ListDrafts возвращает сохранённые черновики.
func (s *Service) ListDrafts(ctx context.Context) ([]model.Draft, error) {
	return s.drafts.ListDrafts(ctx)
}

// ExportDrafts пишет все черновики в книгу XLSX.
func (s *Service) ExportDrafts(ctx context.Context, w io.Writer) error {
	drafts, err := s.drafts.ListDrafts(ctx)
	if err != nil {
		return err
	}
	return export.Drafts(w, drafts, s.calc)
}

// FetchReport возвращает отчёт из удалённой системы.
func (s *Service) FetchReport(ctx context.Context, reportID string) (json.RawMessage, error) {
	return s.workflow.FetchReport(ctx, reportID)
}

// SubmitDrawnSignature нормализует нарисованную подпись и сохраняет её для отчёта.
func (s *Service) SubmitDrawnSignature(ctx context.Context, reportID, dataURL string) error {
	img, err := signature.NormalizeDataURL(dataURL)
	if err != nil {
		return err
	}
	return s.workflow.SaveSignature(ctx, reportID, img)
}

// SignatureData возвращает данные для страницы текстовой подписи.
// Для уже подписанного отчёта возвращаются данные и ErrAlreadySigned.
func (s *Service) SignatureData(ctx context.Context, token string) (*model.SignatureRequest, error) {
	data, err := s.workflow.FetchSignatureData(ctx, token)
	if err != nil {
		return nil, err
	}
	if data.Signed() {
		return data, ErrAlreadySigned
	}
	return data, nil
}

// SubmitTypedSignature сохраняет текстовую подпись вида "имя - подпись".
func (s *Service) SubmitTypedSignature(ctx context.Context, token, name, sig string) error {
	if err := validation.TypedSignature(name, sig); err != nil {
		return err
	}
	return s.workflow.SignReport(ctx, token, strings.TrimSpace(name)+" - "+strings.TrimSpace(sig))
}

// PendingInvoices возвращает неоплаченные счета.
func (s *Service) PendingInvoices(ctx context.Context) ([]model.PendingInvoice, error) {
	return s.workflow.FetchPendingInvoices(ctx)
}

// MarkInvoicePaid отмечает счёт как оплаченный.
func (s *Service) MarkInvoicePaid(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return validation.Errors{{Field: "numeroFacture", Message: "Numéro de facture requis"}}
	}
	return s.workflow.MarkInvoicePaid(ctx, number)
}
