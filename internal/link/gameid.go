package link

import (
	"strings"

	"github.com/google/uuid"
)

// Kind tells which game client an identity belongs to.
type Kind int

const (
	KindJava Kind = iota
	KindBedrock
)

func (k Kind) String() string {
	switch k {
	case KindBedrock:
		return "bedrock"
	default:
		return "java"
	}
}

// GameID is a 128-bit game account identifier.
//
// Bedrock identities carry all-zero high 64 bits; everything else is Java.
type GameID uuid.UUID

// NilGameID is the zero identity. It is never stored.
var NilGameID GameID

// ParseGameID parses any UUID form accepted by uuid.Parse.
func ParseGameID(s string) (GameID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return NilGameID, err
	}
	return GameID(u), nil
}

// MustParseGameID is ParseGameID for constants and tests.
func MustParseGameID(s string) GameID {
	id, err := ParseGameID(s)
	if err != nil {
		panic("link: bad game id " + s + ": " + err.Error())
	}
	return id
}

func (id GameID) String() string { return uuid.UUID(id).String() }

// IsBedrock reports whether the most significant 64 bits are zero.
func (id GameID) IsBedrock() bool {
	for _, b := range id[:8] {
		if b != 0 {
			return false
		}
	}
	return true
}

func (id GameID) Kind() Kind {
	if id.IsBedrock() {
		return KindBedrock
	}
	return KindJava
}

func (id GameID) IsZero() bool { return id == NilGameID }

func (id GameID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *GameID) UnmarshalText(b []byte) error {
	v, err := ParseGameID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
