// Package workflow предоставляет клиент удалённого сценария обработки отчётов.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

// Действия, которые понимает удалённый сценарий.
const (
	ActionFetchClients         = "get_clients"
	ActionRunWorkflow          = "workflow_complet"
	ActionFetchReport          = "get_rapport"
	ActionSaveSignature        = "sauvegarder_signature"
	ActionFetchPendingInvoices = "getFacturesEnAttente"
	ActionMarkInvoicePaid      = "marquerFacturePayee"
	ActionFetchSignatureData   = "getSignatureData"
	ActionSignReport           = "signerRapport"
)

const unknownRemoteError = "Erreur inconnue"

var (
	// ErrTransport возвращается, если удалённая система недоступна или ответила не 2xx.
	ErrTransport = errors.New("workflow endpoint unreachable")
	// ErrNotConfigured возвращается, если адрес удалённой системы не задан.
	ErrNotConfigured = errors.New("workflow endpoint not configured")
)

// RemoteError описывает отказ, о котором сообщила сама удалённая система (success == false).
type RemoteError struct {
	Action  string
	Message string
}

// Error возвращает сообщение удалённой системы без изменений.
func (e *RemoteError) Error() string {
	return e.Message
}

// Client инкапсулирует HTTP-взаимодействие с удалённым сценарием.
// Повторы не выполняются: неудачный вызов повторяет пользователь.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient создаёт клиент для указанного адреса. Нулевой timeout означает отсутствие ограничения,
// и длительность вызова определяется контекстом запроса.
func NewClient(endpoint string, timeout time.Duration) *Client {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Response содержит разобранный ответ удалённого сценария.
type Response struct {
	Success bool
	Message string
	fields  map[string]json.RawMessage
}

// Decode декодирует поле ответа с указанным ключом. Отсутствующее поле или null оставляют v без изменений.
func (r *Response) Decode(key string, v any) error {
	raw, ok := r.fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %q: %v", ErrTransport, key, err)
	}
	return nil
}

// Call отправляет тело запроса и возвращает ответ. success == false превращается в *RemoteError.
func (c *Client) Call(ctx context.Context, action string, body any) (*Response, error) {
	if c == nil || c.endpoint == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s: unexpected status %d", ErrTransport, action, resp.StatusCode)
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %v", ErrTransport, action, err)
	}

	res := &Response{fields: fields}
	if raw, ok := fields["success"]; ok {
		_ = json.Unmarshal(raw, &res.Success)
	}
	res.Message = textField(fields["message"])

	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = textField(fields["error"])
		}
		if msg == "" {
			msg = unknownRemoteError
		}
		return nil, &RemoteError{Action: action, Message: msg}
	}

	return res, nil
}

func textField(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type actionRequest struct {
	Action string `json:"action"`
}

// FetchClients возвращает справочник клиентов.
func (c *Client) FetchClients(ctx context.Context) ([]model.Client, error) {
	resp, err := c.Call(ctx, ActionFetchClients, actionRequest{Action: ActionFetchClients})
	if err != nil {
		return nil, err
	}

	clients := []model.Client{}
	if err := resp.Decode("data", &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

type workflowRequest struct {
	Action      string                   `json:"action"`
	Report      model.InterventionReport `json:"rapport"`
	Lines       []model.InvoiceLine      `json:"lignesFacture"`
	Totals      *model.InvoiceSummary    `json:"totaux"`
	SendEmail   bool                     `json:"envoyerEmail"`
	SendInvoice bool                     `json:"envoyerFacture"`
}

// RunWorkflow отправляет снимок отчёта, строки счёта и параметры отправки одним запросом.
// Если счёт не создаётся, строки и итоги передаются как null.
func (c *Client) RunWorkflow(ctx context.Context, sub model.Submission) (*model.WorkflowResult, error) {
	body := workflowRequest{
		Action:    ActionRunWorkflow,
		Report:    sub.Report,
		SendEmail: sub.Options.SendReportEmail,
	}
	if sub.Options.CreateInvoice {
		body.Lines = sub.Lines
		if body.Lines == nil {
			body.Lines = []model.InvoiceLine{}
		}
		body.Totals = sub.Summary
		body.SendInvoice = sub.Options.SendInvoiceEmail
	}

	resp, err := c.Call(ctx, ActionRunWorkflow, body)
	if err != nil {
		return nil, err
	}

	var res model.WorkflowResult
	if err := resp.Decode("data", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type reportRequest struct {
	Action    string `json:"action"`
	ReportID  string `json:"rapportId"`
	Signature string `json:"signature,omitempty"`
}

// FetchReport возвращает данные отчёта в том виде, в каком их хранит удалённая система.
func (c *Client) FetchReport(ctx context.Context, reportID string) (json.RawMessage, error) {
	resp, err := c.Call(ctx, ActionFetchReport, reportRequest{Action: ActionFetchReport, ReportID: reportID})
	if err != nil {
		return nil, err
	}

	var data json.RawMessage
	if err := resp.Decode("data", &data); err != nil {
		return nil, err
	}
	return data, nil
}

// SaveSignature сохраняет нарисованную подпись (data URL изображения) для отчёта.
func (c *Client) SaveSignature(ctx context.Context, reportID, image string) error {
	_, err := c.Call(ctx, ActionSaveSignature, reportRequest{
		Action:    ActionSaveSignature,
		ReportID:  reportID,
		Signature: image,
	})
	return err
}

// FetchPendingInvoices возвращает неоплаченные счета.
func (c *Client) FetchPendingInvoices(ctx context.Context) ([]model.PendingInvoice, error) {
	resp, err := c.Call(ctx, ActionFetchPendingInvoices, actionRequest{Action: ActionFetchPendingInvoices})
	if err != nil {
		return nil, err
	}

	invoices := []model.PendingInvoice{}
	if err := resp.Decode("factures", &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

type invoiceRequest struct {
	Action        string `json:"action"`
	InvoiceNumber string `json:"numeroFacture"`
}

// MarkInvoicePaid отмечает счёт как оплаченный.
func (c *Client) MarkInvoicePaid(ctx context.Context, number string) error {
	_, err := c.Call(ctx, ActionMarkInvoicePaid, invoiceRequest{Action: ActionMarkInvoicePaid, InvoiceNumber: number})
	return err
}

type tokenRequest struct {
	Action    string `json:"action"`
	Token     string `json:"token"`
	Signature string `json:"signature,omitempty"`
}

// FetchSignatureData возвращает данные отчёта для страницы подписи по токену.
func (c *Client) FetchSignatureData(ctx context.Context, token string) (*model.SignatureRequest, error) {
	resp, err := c.Call(ctx, ActionFetchSignatureData, tokenRequest{Action: ActionFetchSignatureData, Token: token})
	if err != nil {
		return nil, err
	}

	var data model.SignatureRequest
	if err := resp.Decode("rapport", &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SignReport сохраняет текстовую подпись отчёта по токену.
func (c *Client) SignReport(ctx context.Context, token, signature string) error {
	_, err := c.Call(ctx, ActionSignReport, tokenRequest{Action: ActionSignReport, Token: token, Signature: signature})
	return err
}
