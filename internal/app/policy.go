package app

import (
	"errors"

	"github.com/dkeye/RoomRelay/internal/domain"
)

var ErrIdentityRejected = errors.New("identity rejected")

// Policy vets an identification before any room is assigned.
// Identity claims are trusted by default.
type Policy interface {
	Admit(ident domain.Identification, clientIP string) error
}

type AllowAll struct{}

func (AllowAll) Admit(domain.Identification, string) error { return nil }

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ident domain.Identification, clientIP string) error

func (f PolicyFunc) Admit(ident domain.Identification, clientIP string) error {
	return f(ident, clientIP)
}
