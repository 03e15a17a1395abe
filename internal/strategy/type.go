// Package strategy defines the strategy vocabulary: the closed set of
// strategy types the engine computes positions for, the leg-rule grammar
// used to express strike targeting, and the wider template catalog.
package strategy

import (
	"errors"
	"fmt"
)

// ErrUnknownType marks strategy identifiers outside the computed set.
var ErrUnknownType = errors.New("unknown strategy type")

// Type enumerates the strategies the engine computes. It is a closed set:
// every dispatcher switches exhaustively and treats anything else as an
// input error, so adding a strategy is a compile-visible change.
type Type int

const (
	LongStrangle Type = iota + 1
	ShortStrangle
	LongStraddle
	ShortStraddle
	IronCondor
	ButterflySpread
	DiagonalCalendar
)

var typeNames = map[Type]string{
	LongStrangle:     "long_strangle",
	ShortStrangle:    "short_strangle",
	LongStraddle:     "long_straddle",
	ShortStraddle:    "short_straddle",
	IronCondor:       "iron_condor",
	ButterflySpread:  "butterfly_spread",
	DiagonalCalendar: "diagonal_calendar",
}

// All returns the computed strategy types in declaration order.
func All() []Type {
	return []Type{
		LongStrangle,
		ShortStrangle,
		LongStraddle,
		ShortStraddle,
		IronCondor,
		ButterflySpread,
		DiagonalCalendar,
	}
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("strategy(%d)", int(t))
}

// Valid reports whether t is one of the computed strategies.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType maps a wire identifier like "long_strangle" to its Type.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// LegCount returns how many legs the strategy trades.
func (t Type) LegCount() int {
	switch t {
	case LongStrangle, ShortStrangle, LongStraddle, ShortStraddle, DiagonalCalendar:
		return 2
	case IronCondor:
		return 4
	case ButterflySpread:
		return 3
	default:
		return 0
	}
}

// IsCredit reports whether the strategy collects net premium at open.
func (t Type) IsCredit() bool {
	switch t {
	case ShortStrangle, ShortStraddle, IronCondor:
		return true
	case LongStrangle, LongStraddle, ButterflySpread, DiagonalCalendar:
		return false
	default:
		return false
	}
}

// MarshalText lets positions serialize the type by name.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText parses the wire name.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
