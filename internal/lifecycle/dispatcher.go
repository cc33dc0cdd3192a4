package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// ErrNoTransaction is returned by Dispatch when called without a transaction
// handle.
var ErrNoTransaction = errors.New("lifecycle: dispatch requires an open transaction")

// Reaction derives state from ev using tx, the transaction of the mutation
// that produced the event. It must not commit or roll back tx.
type Reaction func(ctx context.Context, tx *gorm.DB, ev Event) error

type registration struct {
	name string
	fn   Reaction
}

// ReactionError wraps the error of the reaction that stopped a dispatch.
type ReactionError struct {
	Event    Kind
	Reaction string
	Err      error
}

func (e *ReactionError) Error() string {
	return fmt.Sprintf("lifecycle: %s reaction %q: %v", e.Event, e.Reaction, e.Err)
}

func (e *ReactionError) Unwrap() error { return e.Err }

// Dispatcher holds the reactions registered per event kind. The zero value is
// not usable; construct with NewDispatcher. Registration is expected during
// wiring, but Register and Dispatch are both safe for concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	reactions map[Kind][]registration
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{reactions: make(map[Kind][]registration)}
}

// Register appends fn to the reactions of kind under name. Reactions run in
// the order they were registered.
func (d *Dispatcher) Register(kind Kind, name string, fn Reaction) {
	if fn == nil {
		panic("lifecycle: nil reaction for " + string(kind))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reactions[kind] = append(d.reactions[kind], registration{name: name, fn: fn})
}

// Reactions returns the registered reaction names for kind, in run order.
func (d *Dispatcher) Reactions(kind Kind) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	regs := d.reactions[kind]
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.name
	}
	return out
}

// Dispatch runs every reaction registered for ev.Kind() on tx. The first
// failing reaction stops the dispatch and its error is returned wrapped in a
// *ReactionError. Dispatch never retries.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *gorm.DB, ev Event) error {
	if tx == nil {
		return ErrNoTransaction
	}
	kind := ev.Kind()

	d.mu.RLock()
	regs := append([]registration(nil), d.reactions[kind]...)
	d.mu.RUnlock()

	ctx, span := otel.Tracer("lifecycle/Dispatcher").Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("event", string(kind)),
			attribute.Int("reactions", len(regs)),
		),
	)
	defer span.End()

	lg := zerolog.Ctx(ctx)
	start := time.Now()
	defer func() {
		reactionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	for _, r := range regs {
		if err := r.fn(ctx, tx, ev); err != nil {
			reactionsTotal.WithLabelValues(string(kind), r.name, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, r.name)
			lg.Warn().
				Str("event", string(kind)).
				Str("reaction", r.name).
				Err(err).
				Msg("lifecycle reaction failed")
			return &ReactionError{Event: kind, Reaction: r.name, Err: err}
		}
		reactionsTotal.WithLabelValues(string(kind), r.name, "ok").Inc()
	}

	lg.Debug().
		Str("event", string(kind)).
		Int("reactions", len(regs)).
		Dur("took", time.Since(start)).
		Msg("lifecycle dispatched")
	return nil
}
