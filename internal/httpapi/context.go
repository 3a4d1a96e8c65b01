package httpapi

import (
	"context"

	"github.com/stockassistant/orchestrator/internal/models"
)

type ctxKey int

const (
	ctxUser ctxKey = iota
	ctxCorrelationID
)

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ctxUser, user)
}

// userFrom reads the authenticated caller, set by authMiddleware.
func userFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(ctxUser).(*models.User)
	return user, ok && user != nil
}

// userIDFrom is the common case of userFrom where only the id is needed.
func userIDFrom(ctx context.Context) (string, bool) {
	user, ok := userFrom(ctx)
	if !ok {
		return "", false
	}
	return user.ID, true
}

func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxCorrelationID, id)
}

func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxCorrelationID).(string)
	return id
}
