package budget_request

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const ActorKey contextKey = "actor"

var ErrNoActor = errors.New("actor not found")

// CurrentActor retrieves the acting person from the context. Returns ErrNoActor if none is present.
func CurrentActor(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(ActorKey).(Actor)
	if !ok {
		log.Trace("actor not found in context")
		return Actor{}, ErrNoActor
	}
	return actor, nil
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}
