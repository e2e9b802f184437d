package appctx

import "context"

type ctxKey string

const participantKey ctxKey = "participant"

// WithParticipant добавляет идентификатор участника в контекст
func WithParticipant(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, participantKey, ref)
}

// Participant извлекает идентификатор участника из контекста
func Participant(ctx context.Context) (string, bool) {
	ref, ok := ctx.Value(participantKey).(string)
	return ref, ok && ref != ""
}
