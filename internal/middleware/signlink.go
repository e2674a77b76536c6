package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const reportIDKey contextKey = "reportID"

// TokenVerifier проверяет токен ссылки на подпись и возвращает идентификатор отчёта.
type TokenVerifier interface {
	ReportID(token string) (string, error)
}

// SignatureLink проверяет токен из параметра маршрута {token} и кладёт идентификатор отчёта в контекст.
// Неверный токен даёт 404, чтобы не раскрывать существование отчётов.
func SignatureLink(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reportID, err := verifier.ReportID(chi.URLParam(r, "token"))
			if err != nil {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}

			ctx := context.WithValue(r.Context(), reportIDKey, reportID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReportIDFromContext извлекает идентификатор отчёта, проверенный SignatureLink.
func ReportIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(reportIDKey).(string)
	return id, ok
}
