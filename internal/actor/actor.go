// Package actor identifies who is driving an operation: a buyer, merchant,
// courier, admin or the system itself (sweeps and gateway callbacks).
package actor

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeBuyer    Type = "BUYER"
	TypeMerchant Type = "MERCHANT"
	TypeCourier  Type = "COURIER"
	TypeAdmin    Type = "ADMIN"
	TypeSystem   Type = "SYSTEM"
)

var ErrInvalidActor = errors.New("invalid_actor")

type Actor struct {
	Type Type
	ID   snowflake.ID
}

// System is the actor used by scheduled sweeps and payment gateway callbacks.
func System() Actor {
	return Actor{Type: TypeSystem}
}

// ParseType normalizes an actor type string.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(value)))
	switch t {
	case TypeBuyer, TypeMerchant, TypeCourier, TypeAdmin, TypeSystem:
		return t, nil
	default:
		return "", ErrInvalidActor
	}
}

// Validate requires an identity for every party except the system.
func (a Actor) Validate() error {
	switch a.Type {
	case TypeSystem:
		return nil
	case TypeBuyer, TypeMerchant, TypeCourier, TypeAdmin:
		if a.ID == 0 {
			return ErrInvalidActor
		}
		return nil
	default:
		return ErrInvalidActor
	}
}

// Role returns the authorization subject for the actor type.
func (a Actor) Role() string {
	return "role:" + strings.ToLower(string(a.Type))
}

func (a Actor) IsPrivileged() bool {
	return a.Type == TypeAdmin || a.Type == TypeSystem
}

func (a Actor) String() string {
	if a.Type == TypeSystem {
		return string(a.Type)
	}
	return string(a.Type) + ":" + a.ID.String()
}

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}
