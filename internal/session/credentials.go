// Package session carries the caller identity required by every remote
// clinic API call. Credentials are passed explicitly into each component
// rather than threaded through ambient state.
package session

import (
	"errors"
	"strings"
)

var (
	// ErrMissingActor indicates a call without an acting user identity.
	ErrMissingActor = errors.New("session: missing actor")
	// ErrMissingToken indicates a call without a session token.
	ErrMissingToken = errors.New("session: missing token")
)

// Credentials identifies the acting user and their session token.
// Both fields are required preconditions for any remote call; their
// absence is a local failure, never sent to the network.
type Credentials struct {
	Actor string
	Token string
}

// Validate reports whether the credentials satisfy the remote-call
// precondition.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Actor) == "" {
		return ErrMissingActor
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	return nil
}
