package model

import "github.com/shopspring/decimal"

// Settings содержит неизменяемые параметры предприятия: ставки налога, тарифы и значения формы по умолчанию.
// Значение передаётся явно в калькулятор и инициализатор формы.
type Settings struct {
	Rates              TaxRates
	DefaultTechnician  string
	LabourRate         decimal.Decimal
	TravelRate         decimal.Decimal
	TravelTahitiRate   decimal.Decimal
	DefaultRefrigerant string
	DefaultStartTime   string
	DefaultEndTime     string
	CompanyName        string
}

// DefaultSettings возвращает параметры Depann'Froid.
func DefaultSettings() Settings {
	return Settings{
		Rates: TaxRates{
			Supply:  decimal.RequireFromString("0.16"),
			Service: decimal.RequireFromString("0.13"),
		},
		DefaultTechnician:  "Lionel",
		LabourRate:         decimal.NewFromInt(8000),
		TravelRate:         decimal.NewFromInt(3500),
		TravelTahitiRate:   decimal.NewFromInt(8500),
		DefaultRefrigerant: "R-410A",
		DefaultStartTime:   "08:00",
		DefaultEndTime:     "10:00",
		CompanyName:        "DEPANN'FROID",
	}
}
