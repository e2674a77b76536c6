// Package validation содержит проверки входных данных перед обращением к удалённой системе.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

// FieldError описывает ошибку в одном поле формы.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors содержит все ошибки проверки формы.
type Errors []FieldError

// Error возвращает сообщения об ошибках, по одному на строку.
func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, "\n")
}

var validate = validator.New()

// Submission проверяет отчёт перед отправкой с указанными параметрами.
func Submission(r model.InterventionReport, opts model.SendOptions) error {
	var errs Errors

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, FieldError{Field: "client", Message: "Veuillez renseigner le nom du client"})
	}

	email := strings.TrimSpace(r.Email)
	emailNeeded := opts.SendReportEmail || (opts.CreateInvoice && opts.SendInvoiceEmail)

	switch {
	case !emailNeeded:
	case email == "":
		errs = append(errs, FieldError{Field: "emailClient", Message: "Email client requis pour l'envoi automatique"})
	case !IsEmail(email):
		errs = append(errs, FieldError{Field: "emailClient", Message: "Adresse email client invalide"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// TypedSignature проверяет имя подписанта и текст подписи.
func TypedSignature(name, signature string) error {
	var errs Errors

	if strings.TrimSpace(name) == "" {
		errs = append(errs, FieldError{Field: "nom", Message: "Veuillez entrer votre nom"})
	}
	if strings.TrimSpace(signature) == "" {
		errs = append(errs, FieldError{Field: "signature", Message: "Veuillez entrer votre signature"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// IsEmail проверяет формат адреса электронной почты.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
