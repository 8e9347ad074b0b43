// Package id mints run identifiers. Everything inside a simulation is
// identified by deterministic counters so reruns produce identical
// histories; only the run itself gets a ULID here, unique across processes
// and time-sortable so journal rows line up by start time.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns the ULID for a freshly started run.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
