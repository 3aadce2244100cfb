package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/pasarku/internal/actor"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service answers whether an actor's role may perform an action. Ownership
// of the individual order is checked by the owning service.
type Service interface {
	Authorize(ctx context.Context, a actor.Actor, object string, action string) error
}
