// Package model содержит доменные сущности сервиса отчётов о вмешательствах.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category описывает тип строки счёта.
type Category string

const (
	CategoryService Category = "service"
	CategorySupply  Category = "fourniture"
)

// IsSupply сообщает, относится ли строка к поставкам. Всё остальное, включая пустое значение, считается услугой.
func (c Category) IsSupply() bool {
	return c == CategorySupply
}

// UnmarshalJSON нормализует категорию: неизвестные и пустые значения превращаются в услугу.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*c = CategoryService
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fourniture", "supply":
		*c = CategorySupply
	default:
		*c = CategoryService
	}
	return nil
}

// InvoiceLine описывает одну строку счёта. Идентичностью строки служит её позиция в последовательности.
type InvoiceLine struct {
	Description string   `json:"description"`
	Category    Category `json:"type"`
	Quantity    Number   `json:"quantite"`
	UnitPrice   Number   `json:"prixUnitaire"`
}

// TaxRates задаёт ставки НДС по категориям.
type TaxRates struct {
	Supply  decimal.Decimal
	Service decimal.Decimal
}

// InvoiceSummary содержит итоги счёта с разбивкой налога по категориям.
type InvoiceSummary struct {
	HTSupplies  decimal.Decimal
	VATSupplies decimal.Decimal
	HTServices  decimal.Decimal
	VATServices decimal.Decimal
	TotalHT     decimal.Decimal
	TotalVAT    decimal.Decimal
	TotalTTC    decimal.Decimal
}

// MarshalJSON кодирует суммы как JSON-числа.
func (s InvoiceSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		HTSupplies  json.Number `json:"htFournitures"`
		VATSupplies json.Number `json:"tvaFournitures"`
		HTServices  json.Number `json:"htServices"`
		VATServices json.Number `json:"tvaServices"`
		TotalHT     json.Number `json:"totalHT"`
		TotalVAT    json.Number `json:"totalTVA"`
		TotalTTC    json.Number `json:"totalTTC"`
	}{
		HTSupplies:  json.Number(s.HTSupplies.String()),
		VATSupplies: json.Number(s.VATSupplies.String()),
		HTServices:  json.Number(s.HTServices.String()),
		VATServices: json.Number(s.VATServices.String()),
		TotalHT:     json.Number(s.TotalHT.String()),
		TotalVAT:    json.Number(s.TotalVAT.String()),
		TotalTTC:    json.Number(s.TotalTTC.String()),
	})
}

// ClientInfo содержит сведения о клиенте в отчёте.
type ClientInfo struct {
	Name        string `json:"client"`
	Address     string `json:"adresseClient"`
	Phone       string `json:"telClient"`
	Email       string `json:"emailClient"`
	SiteContact string `json:"contactSite"`
}

// Equipment описывает обслуживаемое оборудование.
type Equipment struct {
	Type         string `json:"typeEquipement"`
	Brand        string `json:"marque"`
	Model        string `json:"modele"`
	SerialNumber string `json:"numeroSerie"`
	Refrigerant  string `json:"fluide"`
	Power        string `json:"puissance"`
	Location     string `json:"localisation"`
}

// Measurements содержит необязательные замеры на объекте.
type Measurements struct {
	HighPressure Number `json:"pressionHP"`
	LowPressure  Number `json:"pressionBP"`
	Superheat    Number `json:"surchauffe"`
	Subcooling   Number `json:"sousRefroid"`
	EvapTemp     Number `json:"tempEvap"`
	CondTemp     Number `json:"tempCond"`
	AmbientTemp  Number `json:"tempAmbiance"`
	Current      Number `json:"intensite"`
}

// InterventionReport описывает отчёт о вмешательстве.
// Сведения о клиенте и оборудовании встроены, поэтому на проводе они плоские, как ждёт удалённый скрипт.
type InterventionReport struct {
	ReportNumber string `json:"numeroRapport"`
	Date         string `json:"dateIntervention"`
	StartTime    string `json:"heureDebut"`
	EndTime      string `json:"heureFin"`
	Technician   string `json:"technicien"`
	ClientInfo
	Equipment
	InterventionType string       `json:"typeIntervention"`
	CallReason       string       `json:"motifAppel"`
	ArrivalFindings  string       `json:"constatArrivee"`
	Diagnostic       string       `json:"diagnostic"`
	WorkDone         string       `json:"travauxRealises"`
	Measurements     Measurements `json:"mesures"`
	PartsUsed        string       `json:"piecesUtilisees"`
	Recommendations  string       `json:"recommandations"`
	NextVisit        string       `json:"prochaineVisite"`
	Urgency          string       `json:"urgence"`
}

// Client описывает запись справочника клиентов удалённой системы.
type Client struct {
	Name    string `json:"nom"`
	Address string `json:"adresse"`
	Phone   string `json:"telephone"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// RemoteID принимает идентификатор удалённой системы как строку или число.
type RemoteID string

// UnmarshalJSON декодирует строковый или числовой идентификатор.
func (id *RemoteID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = RemoteID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RemoteID(n.String())
	return nil
}

// InvoiceRef описывает счёт, созданный удалённой системой.
type InvoiceRef struct {
	ID       RemoteID `json:"id"`
	TotalTTC Number   `json:"totalTTC"`
}

// WorkflowResult содержит ответ удалённой системы на полный цикл обработки отчёта.
type WorkflowResult struct {
	Report struct {
		ID RemoteID `json:"id"`
	} `json:"rapport"`
	Invoice   *InvoiceRef `json:"facture"`
	EmailSent bool        `json:"emailEnvoye"`
}

// SendOptions задаёт, что нужно сделать при отправке отчёта.
type SendOptions struct {
	CreateInvoice    bool `json:"creerFacture"`
	SendReportEmail  bool `json:"envoyerEmail"`
	SendInvoiceEmail bool `json:"envoyerFacture"`
}

// DefaultSendOptions возвращает параметры отправки по умолчанию: счёт создаётся, письма отправляются.
func DefaultSendOptions() SendOptions {
	return SendOptions{
		CreateInvoice:    true,
		SendReportEmail:  true,
		SendInvoiceEmail: true,
	}
}

// Submission содержит снимок отчёта и параметры отправки.
type Submission struct {
	Report  InterventionReport
	Lines   []InvoiceLine
	Summary *InvoiceSummary
	Options SendOptions
}

// PendingInvoice описывает неоплаченный счёт.
type PendingInvoice struct {
	Number   string `json:"numeroFacture"`
	Client   string `json:"client"`
	Date     string `json:"dateFacture"`
	DueDate  string `json:"dateEcheance"`
	TotalTTC Number `json:"totalTTC"`
	Overdue  bool   `json:"enRetard"`
}

// SignatureRequest содержит данные отчёта, показываемые клиенту перед подписью.
type SignatureRequest struct {
	ReportNumber      string `json:"numeroRapport"`
	Date              string `json:"date"`
	ClientName        string `json:"clientNom"`
	Technician        string `json:"technicien"`
	EquipmentType     string `json:"equipementType"`
	EquipmentBrand    string `json:"equipementMarque"`
	Diagnostic        string `json:"diagnostic"`
	InstallationState string `json:"etatInstallation"`
	ClientSignature   string `json:"signatureClient"`
}

// Signed сообщает, подписан ли уже отчёт.
func (r SignatureRequest) Signed() bool {
	return strings.TrimSpace(r.ClientSignature) != ""
}

// Draft описывает сохранённый черновик отчёта.
type Draft struct {
	ID           int64              `json:"id"`
	ReportNumber string             `json:"numeroRapport"`
	Report       InterventionReport `json:"rapport"`
	Lines        []InvoiceLine      `json:"lignesFacture"`
	SavedAt      time.Time          `json:"savedAt"`
}
