// Package report содержит состояние формы отчёта и хранилище открытых форм.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/mmeshcher/depannfroid-reports/internal/diagnostic"
	"github.com/mmeshcher/depannfroid-reports/internal/invoice"
	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

var (
	// ErrLineNotFound возвращается при обращении к несуществующей строке счёта.
	ErrLineNotFound = errors.New("invoice line not found")
	// ErrUnknownLineKind возвращается для неизвестного вида строки счёта.
	ErrUnknownLineKind = errors.New("unknown invoice line kind")
	// ErrInvalidPatch возвращается, если изменение нельзя разобрать.
	ErrInvalidPatch = errors.New("invalid patch")
)

// LineKind описывает вид добавляемой строки счёта.
type LineKind string

const (
	LineService      LineKind = "service"
	LineSupply       LineKind = "fourniture"
	LineTravel       LineKind = "deplacement"
	LineTravelTahiti LineKind = "deplacement_tahiti"
)

// Form содержит отчёт и упорядоченные строки счёта. Все операции возвращают новое значение.
type Form struct {
	Report model.InterventionReport `json:"rapport"`
	Lines  []model.InvoiceLine      `json:"lignesFacture"`
}

// Initializer создаёт и сбрасывает формы по параметрам предприятия.
type Initializer struct {
	settings model.Settings
	now      func() time.Time
	serial   func() int
}

// NewInitializer создаёт инициализатор форм с текущим временем и случайными номерами отчётов.
func NewInitializer(settings model.Settings) *Initializer {
	return &Initializer{
		settings: settings,
		now:      time.Now,
		serial:   func() int { return rand.Intn(9999) },
	}
}

// Settings возвращает параметры, с которыми создан инициализатор.
func (in *Initializer) Settings() model.Settings {
	return in.settings
}

// New создаёт форму со значениями по умолчанию. Пустой technician заменяется техником по умолчанию.
func (in *Initializer) New(technician string) Form {
	if technician == "" {
		technician = in.settings.DefaultTechnician
	}

	now := in.now()

	return Form{
		Report: model.InterventionReport{
			ReportNumber:     fmt.Sprintf("RI-%d-%04d", now.Year(), in.serial()),
			Date:             now.Format(time.DateOnly),
			StartTime:        in.settings.DefaultStartTime,
			EndTime:          in.settings.DefaultEndTime,
			Technician:       technician,
			Equipment:        model.Equipment{Refrigerant: in.settings.DefaultRefrigerant},
			InterventionType: "maintenance",
			Urgency:          "normale",
		},
		Lines: []model.InvoiceLine{},
	}
}

// Reset возвращает чистую форму, сохраняя техника. Номер отчёта всегда отличается от прежнего.
func (in *Initializer) Reset(f Form) Form {
	next := in.New(f.Report.Technician)
	for next.Report.ReportNumber == f.Report.ReportNumber {
		next = in.New(f.Report.Technician)
	}
	return next
}

// Line создаёт новую строку счёта указанного вида с количеством 1.
func (in *Initializer) Line(kind LineKind) (model.InvoiceLine, error) {
	l := model.InvoiceLine{
		Category: model.CategoryService,
		Quantity: model.NewNumber(1),
	}

	switch kind {
	case LineService, "":
		l.UnitPrice = model.NumberFromDecimal(in.settings.LabourRate)
	case LineSupply:
		l.Category = model.CategorySupply
		l.UnitPrice = model.NewNumber(0)
	case LineTravel:
		l.Description = "Déplacement"
		l.UnitPrice = model.NumberFromDecimal(in.settings.TravelRate)
	case LineTravelTahiti:
		l.Description = "Déplacement Tahiti"
		l.UnitPrice = model.NumberFromDecimal(in.settings.TravelTahitiRate)
	default:
		return model.InvoiceLine{}, fmt.Errorf("%w: %s", ErrUnknownLineKind, kind)
	}

	return l, nil
}

// Apply сливает частичный JSON отчёта с копией формы.
// Поля, отсутствующие в patch, и поля вложенных записей, не упомянутые в нём, сохраняются.
func (f Form) Apply(patch []byte) (Form, error) {
	next := f.clone()
	if err := json.Unmarshal(patch, &next.Report); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return next, nil
}

// SelectClient заполняет сведения о клиенте из записи справочника.
func (f Form) SelectClient(c model.Client) Form {
	next := f.clone()
	next.Report.ClientInfo = model.ClientInfo{
		Name:        c.Name,
		Address:     c.Address,
		Phone:       c.Phone,
		Email:       c.Email,
		SiteContact: c.Contact,
	}
	return next
}

// SuggestDiagnostic заполняет диагностику по заметкам, сделанным по прибытии.
func (f Form) SuggestDiagnostic() Form {
	next := f.clone()
	next.Report.Diagnostic = diagnostic.Suggest(f.Report.ArrivalFindings)
	return next
}

// AddLine добавляет строку в конец счёта.
func (f Form) AddLine(l model.InvoiceLine) Form {
	next := f.clone()
	next.Lines = append(next.Lines, l)
	return next
}

// UpdateLine сливает частичный JSON с строкой по индексу.
func (f Form) UpdateLine(index int, patch []byte) (Form, error) {
	if index < 0 || index >= len(f.Lines) {
		return f, fmt.Errorf("%w: %d", ErrLineNotFound, index)
	}

	next := f.clone()
	if err := json.Unmarshal(patch, &next.Lines[index]); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return next, nil
}

// RemoveLine удаляет строку по индексу, сохраняя порядок остальных.
func (f Form) RemoveLine(index int) (Form, error) {
	if index < 0 || index >= len(f.Lines) {
		return f, fmt.Errorf("%w: %d", ErrLineNotFound, index)
	}

	next := f.clone()
	next.Lines = append(next.Lines[:index], next.Lines[index+1:]...)
	return next, nil
}

// Summary вычисляет итоги счёта формы.
func (f Form) Summary(calc *invoice.Calculator) model.InvoiceSummary {
	return calc.Compute(f.Lines)
}

func (f Form) clone() Form {
	lines := make([]model.InvoiceLine, len(f.Lines))
	copy(lines, f.Lines)
	return Form{Report: f.Report, Lines: lines}
}
