package feed

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDirection is returned by ParseDirection for unrecognized names.
var ErrUnknownDirection = errors.New("unknown direction")

// Direction selects which end of the feed a run pulls from.
type Direction int

const (
	// Newer fetches the most recent page.
	Newer Direction = iota
	// Older follows the stored cursor of the oldest imported record.
	Older
)

func (d Direction) String() string {
	switch d {
	case Newer:
		return "newer"
	case Older:
		return "older"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection maps "newer" or "older" to a Direction. Empty means Newer.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "newer":
		return Newer, nil
	case "older":
		return Older, nil
	default:
		return Newer, fmt.Errorf("%w %q (want newer or older)", ErrUnknownDirection, s)
	}
}
