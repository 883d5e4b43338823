package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

// SubjectKey ключ для хранения subject токена в контексте
const SubjectKey contextKey = "subject"

// GetSubject извлекает subject из контекста запроса
func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectKey).(string)
	return subject, ok
}

// WithSubject кладёт subject в контекст (используется AuthMiddleware)
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}
