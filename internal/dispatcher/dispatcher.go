// Package dispatcher drains the engine-command outbox and delivers each
// command to the simulation runtime.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"simplane/internal/observability"
	"simplane/internal/store"
	"simplane/pkg/api"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config holds configuration for the dispatcher.
type Config struct {
	ID           string
	Concurrency  int
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when the outbox is empty (default: 30s)
}

// Outbox is the part of the outbox store the dispatcher consumes.
type Outbox interface {
	DequeueBatch(ctx context.Context, limit int) ([]store.EngineCommand, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64, errMsg string) (bool, error)
}

// Dispatcher runs the pull-loop that moves commands from the outbox to the runtime.
type Dispatcher struct {
	outbox Outbox
	engine Engine
	config Config
	logger *slog.Logger
	tracer trace.Tracer
	done   chan struct{}
}

// New creates a new dispatcher.
func New(outbox Outbox, engine Engine, config Config, logger *slog.Logger) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		outbox: outbox,
		engine: engine,
		config: config,
		logger: logger.With("dispatcher_id", config.ID),
		tracer: otel.Tracer("simplane-dispatcher"),
		done:   make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On cancellation it stops claiming commands and lets in-flight deliveries finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting", "concurrency", d.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, d.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty outbox, resets on work found)
	currentBackoff := d.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("context cancelled, waiting for in-flight deliveries")
			wg.Wait()
			close(d.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := d.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			cmds, err := d.outbox.DequeueBatch(ctx, availableSlots)
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Error("dequeue failed", "error", err)
				}
				continue
			}

			if len(cmds) == 0 {
				// Empty outbox - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > d.config.MaxBackoff {
					currentBackoff = d.config.MaxBackoff
				}
				continue
			}

			currentBackoff = d.config.PollInterval
			d.logger.Debug("claimed commands", "count", len(cmds))

			for _, cmd := range cmds {
				sem <- struct{}{}

				wg.Add(1)
				go func(cmd store.EngineCommand) {
					defer wg.Done()
					defer func() {
						<-sem
						// Signal that a slot is now available - trigger immediate re-poll
						triggerPoll()
					}()
					// Deliveries outlive the poll context so a shutdown drains them.
					d.deliver(context.WithoutCancel(ctx), cmd)
				}(cmd)
			}

			if len(cmds) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the dispatcher has fully stopped.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// deliver sends one claimed command and settles it in the outbox.
func (d *Dispatcher) deliver(ctx context.Context, cmd store.EngineCommand) {
	log := d.logger.With("command_id", cmd.ID, "session_id", cmd.SessionID, "kind", cmd.Kind, "attempt", cmd.Attempt)

	var payload api.EngineCommandPayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		log.Error("invalid command payload", "error", err)
		d.fail(ctx, log, cmd, "invalid payload: "+err.Error())
		return
	}

	spanCtx, span := d.tracer.Start(observability.FromCarrier(ctx, payload.Trace), "deliver_command",
		trace.WithAttributes(
			attribute.String("command.id", strconv.FormatInt(cmd.ID, 10)),
			attribute.String("command.kind", cmd.Kind),
			attribute.String("session.id", cmd.SessionID.String()),
			attribute.Int("command.attempt", cmd.Attempt),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	err := d.engine.Deliver(spanCtx, api.EngineCommand{
		CommandID: cmd.ID,
		SessionID: cmd.SessionID.String(),
		Kind:      cmd.Kind,
		Attempt:   cmd.Attempt,
		Data:      payload.Data,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("delivery failed", "error", err)
		d.fail(spanCtx, log, cmd, err.Error())
		return
	}

	if err := d.outbox.Complete(spanCtx, cmd.ID); err != nil {
		log.Error("failed to complete command", "error", err)
		return
	}
	log.Info("command delivered")
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, cmd store.EngineCommand, reason string) {
	dropped, err := d.outbox.Fail(ctx, cmd.ID, reason)
	if err != nil {
		log.Error("failed to record delivery failure", "error", err)
		return
	}
	if dropped {
		log.Error("command dropped after exhausting attempts", "reason", reason)
	}
}
