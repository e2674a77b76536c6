package model

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Number хранит необязательное десятичное значение, введённое в форме.
// Пустые и некорректные значения не вызывают ошибку декодирования, а дают Valid == false.
type Number struct {
	Value decimal.Decimal
	Valid bool
}

// NewNumber создаёт заполненное значение из целого числа.
func NewNumber(v int64) Number {
	return Number{Value: decimal.NewFromInt(v), Valid: true}
}

// NumberFromDecimal создаёт заполненное значение из decimal.Decimal.
func NumberFromDecimal(d decimal.Decimal) Number {
	return Number{Value: d, Valid: true}
}

const (
	maxExponent       = 12
	minExponent       = -30
	maxFractionDigits = 6
)

// maxMagnitude ограничивает модуль значения: суммы в XPF и показания приборов заведомо меньше.
var maxMagnitude = decimal.New(1, maxExponent)

// ParseNumber разбирает строку формы. Допускаются запятая как десятичный разделитель и пробелы между разрядами.
// Значения с модулем от 10^12 или с экспонентой вне разумных пределов считаются некорректными,
// дробная часть округляется до 6 знаков.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", ".", " ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if s == "" {
		return Number{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}
	}

	// Проверка экспоненты идёт до любых вычислений: Round и String разворачивают её в цифры.
	if exp := d.Exponent(); exp > maxExponent || exp < minExponent {
		return Number{}
	}
	if d.Abs().GreaterThanOrEqual(maxMagnitude) {
		return Number{}
	}
	if d.Exponent() < -maxFractionDigits {
		d = d.Round(maxFractionDigits)
	}

	return Number{Value: d, Valid: true}
}

// OrZero возвращает значение или ноль, если оно не задано.
func (n Number) OrZero() decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Value
}

// MarshalJSON кодирует значение как JSON-число или null.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Value.String()), nil
}

// UnmarshalJSON принимает число, строку с числом, пустую строку или null.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}

	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = s
	}

	*n = ParseNumber(raw)
	return nil
}
