// Package actor identifies who performed a mutation for the history
// ledger. The identity is supplied per request by the authorization
// collaborator; this core only records it.
package actor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind distinguishes system-initiated mutations from user-initiated ones.
type Kind string

const (
	KindSystem Kind = "system"
	KindUser   Kind = "user"
)

// Actor is the identity stamped onto every history event.
type Actor struct {
	Kind   Kind   `json:"kind"`
	UserID string `json:"user_id,omitempty"`
}

// System is the actor for mutations the core performs on its own behalf
// (bootstrap, promotion during apply).
var System = Actor{Kind: KindSystem}

// User returns the actor for a request authenticated as the given user.
func User(id string) Actor {
	return Actor{Kind: KindUser, UserID: id}
}

func (a Actor) String() string {
	if a.Kind == KindUser {
		return "user:" + a.UserID
	}
	return string(KindSystem)
}

// MarshalText lets actors serve as compact column values and log fields.
func (a Actor) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the compact encoding MarshalText produces, so an
// actor read back from a ledger column round-trips.
func (a *Actor) UnmarshalText(text []byte) error {
	s := string(text)
	switch {
	case s == string(KindSystem):
		*a = System
	case strings.HasPrefix(s, "user:"):
		*a = User(strings.TrimPrefix(s, "user:"))
	default:
		return fmt.Errorf("malformed actor %q", s)
	}
	return nil
}

// JSON returns the canonical ledger encoding of the actor.
func (a Actor) JSON() json.RawMessage {
	b, err := json.Marshal(a)
	if err != nil {
		// Actor has no unmarshalable fields; this cannot fail.
		panic(err)
	}
	return b
}
