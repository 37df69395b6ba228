package sample

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/raterudder/energystats/pkg/log"
	"github.com/raterudder/energystats/pkg/types"
)

// StateSource returns the raw state string of an external entity.
type StateSource interface {
	// State returns the entity's current state. ok is false when the entity
	// does not exist.
	State(ctx context.Context, entityID string) (state string, ok bool, err error)
}

// Reader turns the raw states of bound entities into Samples.
type Reader struct {
	source   StateSource
	bindings map[types.SourceKey]string
}

// NewReader creates a Reader for the given bindings. The bindings are copied
// and fixed for the life of the Reader.
func NewReader(source StateSource, bindings map[types.SourceKey]string) *Reader {
	b := make(map[types.SourceKey]string, len(bindings))
	for k, v := range bindings {
		if v != "" {
			b[k] = v
		}
	}
	return &Reader{
		source:   source,
		bindings: b,
	}
}

// Bound returns the entity bound to key.
func (r *Reader) Bound(key types.SourceKey) (string, bool) {
	id, ok := r.bindings[key]
	return id, ok
}

// Read returns the current sample for key. It never fails: unbound keys,
// missing entities, lookup errors and unparseable states all yield an absent
// sample.
func (r *Reader) Read(ctx context.Context, key types.SourceKey) types.Sample {
	entityID, ok := r.bindings[key]
	if !ok {
		return types.Absent()
	}
	state, ok, err := r.source.State(ctx, entityID)
	if err != nil {
		log.Ctx(ctx).DebugContext(
			ctx,
			"failed to read entity state",
			slog.String("entityID", entityID),
			slog.String("source", string(key)),
			slog.Any("error", err),
		)
		return types.Absent()
	}
	if !ok {
		return types.Absent()
	}
	return ParseState(state)
}

// ParseState converts a raw entity state into a Sample.
func ParseState(state string) types.Sample {
	state = strings.TrimSpace(state)
	switch state {
	case "", "unknown", "unavailable":
		return types.Absent()
	case "on":
		return types.Flag(true)
	case "off":
		return types.Flag(false)
	}
	v, err := strconv.ParseFloat(state, 64)
	if err != nil {
		return types.Absent()
	}
	// NaN and Inf would poison every counter they touch
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return types.Absent()
	}
	return types.Number(v)
}
