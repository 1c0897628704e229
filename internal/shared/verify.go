package shared

import "context"

// ActorVerifier re-checks an actor's secret before destructive operations such as
// cancelling a sale or deleting a customer.
type ActorVerifier interface {
	VerifyActor(ctx context.Context, actorID int64, secret string) error
}

// Credentials is the body of a password-confirmed request.
type Credentials struct {
	Password string `json:"password" validate:"required"`
}
