// Package id provides ULID generation for the engine's identifiers.
//
// Correlation ids are generated once per solve call and stamped on every log
// line and error produced during it; attempt ids tag individual strategy
// invocations. ULIDs keep both lexicographically sortable by time, which makes
// tracing a solve call through the attempt log trivial.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// CorrelationID identifies one Dispatcher.Solve call.
type CorrelationID string

// AttemptID identifies one strategy invocation within a solve call.
type AttemptID string

func (id CorrelationID) String() string { return string(id) }
func (id AttemptID) String() string     { return string(id) }

const (
	correlationPrefix = "sol"
	attemptPrefix     = "att"
)

// Generator produces prefixed ULIDs from a guarded entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a raw ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// Correlation creates a new solve-call correlation id.
func (g *Generator) Correlation() CorrelationID {
	return CorrelationID(fmt.Sprintf("%s_%s", correlationPrefix, g.Generate()))
}

// Attempt creates a new attempt id.
func (g *Generator) Attempt() AttemptID {
	return AttemptID(fmt.Sprintf("%s_%s", attemptPrefix, g.Generate()))
}

// NewCorrelationID generates a correlation id from the default generator.
func NewCorrelationID() CorrelationID {
	return Default().Correlation()
}

// NewAttemptID generates an attempt id from the default generator.
func NewAttemptID() AttemptID {
	return Default().Attempt()
}

// Timestamp extracts the embedded time from a prefixed id.
func Timestamp(raw string) (time.Time, error) {
	if i := len(raw) - ulid.EncodedSize; i > 0 && raw[i-1] == '_' {
		raw = raw[i:]
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
