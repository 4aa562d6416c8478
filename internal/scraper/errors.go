package scraper

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload marks a profile payload the parser could not
// decode. Retrying will not fix a structurally bad payload, so the
// coordinator treats it as a terminal per-player failure.
var ErrMalformedPayload = errors.New("malformed profile payload")

// ErrCatalogUnavailable marks a failed catalog or roster load. These are
// fatal to starting a crawl: without them no names can be resolved.
var ErrCatalogUnavailable = errors.New("reference data unavailable")

// StatusError is a transient fetch failure carrying the upstream HTTP
// status code.
type StatusError struct {
	Player     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("profile fetch for %q returned status %d", e.Player, e.StatusCode)
}

// IsTerminal reports whether the error exhausts a player's retry budget
// immediately rather than through the attempt counter.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}
