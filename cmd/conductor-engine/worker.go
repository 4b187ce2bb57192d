package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openimaging/conductor/pkg/eventbus"
	"github.com/openimaging/conductor/pkg/events"
	"github.com/openimaging/conductor/pkg/otelhelper"
	"github.com/openimaging/conductor/pkg/workflow"
)

// Engine subscribes the workflow manager to the inbound topics and runs
// until the process is signaled to stop.
type Engine struct {
	id      string
	logger  *slog.Logger
	bus     eventbus.EventBus
	manager *workflow.Manager
}

func NewEngine(id string, logger *slog.Logger, bus eventbus.EventBus, manager *workflow.Manager) *Engine {
	return &Engine{
		id:      id,
		logger:  logger,
		bus:     bus,
		manager: manager,
	}
}

func (e *Engine) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := otelhelper.NewTracer(ctx, "conductor-engine")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	subscriber := &tracedSubscriber{bus: e.bus, tracer: tracer}
	if err := e.manager.RegisterHandlers(subscriber); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	if err := e.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	e.logger.InfoContext(ctx, "Conductor engine running")

	<-ctx.Done()
	e.logger.Info("Conductor engine stopping")

	return nil
}

// tracedSubscriber wraps each registered handler in a span carrying the
// event type.
type tracedSubscriber struct {
	bus    eventbus.EventSubscriber
	tracer trace.Tracer
}

func (s *tracedSubscriber) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	return s.bus.Handle(eventType, func(ctx context.Context, event any) error {
		ctx, span := otelhelper.StartSpan(ctx, s.tracer, "engine.handle",
			attribute.String(otelhelper.EventTypeKey, string(eventType)))
		defer span.End()

		err := handler(ctx, event)
		if err != nil {
			otelhelper.SetError(span, err)
		}

		return err
	})
}

func (s *tracedSubscriber) Subscribe(ctx context.Context) error {
	return s.bus.Subscribe(ctx)
}
