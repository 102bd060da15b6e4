package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreatedEvent is published once a new user row has been committed.
type CreatedEvent struct {
	UserID    uuid.UUID
	CreatedAt time.Time
}

// CreatedListener reacts to new signups. Implementations must not assume the
// signup can be rolled back: the user already exists when they run.
type CreatedListener interface {
	OnUserCreated(ctx context.Context, event CreatedEvent)
}

// CreatedListenerFunc adapts a plain function to CreatedListener.
type CreatedListenerFunc func(ctx context.Context, event CreatedEvent)

func (f CreatedListenerFunc) OnUserCreated(ctx context.Context, event CreatedEvent) {
	f(ctx, event)
}
