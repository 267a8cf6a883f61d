package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/toomja/ilm/internal/provider/resilience"
)

// Job types accepted on the trigger subscription.
const (
	JobAggregate   = "aggregate"
	JobSweep       = "sweep"
	JobHealthCheck = "health_check"
)

// ErrUnknownJobType is returned by Dispatch for unsupported job types.
var ErrUnknownJobType = errors.New("unknown job type")

// JobMessage is an on-demand trigger message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// One cycle at a time is all the pipeline can do anyway.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var job JobMessage
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		// Redelivery cannot fix a malformed payload.
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Ack()
		return
	}

	switch err := h.dispatcher.Dispatch(ctx, job); {
	case errors.Is(err, ErrUnknownJobType):
		logger.Warn().Str("job_type", job.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
	case errors.Is(err, ErrCycleInProgress):
		logger.Info().Str("job_type", job.JobType).Msg("cycle already running, dropping trigger")
		msg.Ack()
	case err != nil:
		logger.Error().Err(err).Str("job_type", job.JobType).Msg("job failed")
		msg.Nack()
	default:
		msg.Ack()
	}
}

// Dispatcher executes trigger jobs independently of the transport.
type Dispatcher struct {
	job      *CycleJob
	registry *resilience.Registry
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. registry may be nil, in which case
// health checks always pass.
func NewDispatcher(job *CycleJob, registry *resilience.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		job:      job,
		registry: registry,
		logger:   logger,
	}
}

// Dispatch runs the job named by msg.
func (d *Dispatcher) Dispatch(ctx context.Context, msg JobMessage) error {
	start := time.Now()

	var err error
	switch msg.JobType {
	case JobAggregate:
		_, err = d.job.Run(ctx)
	case JobSweep:
		_, err = d.job.Sweep(ctx)
	case JobHealthCheck:
		err = d.healthCheck()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
	if err != nil {
		return err
	}

	d.logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(start)).
		Msg("job completed successfully")
	return nil
}

// healthCheck fails when every registered upstream has an open circuit.
func (d *Dispatcher) healthCheck() error {
	if d.registry == nil {
		return nil
	}

	health := d.registry.GetAllHealth()
	open := 0
	for _, h := range health {
		if h.IsUnhealthy() {
			open++
			d.logger.Warn().
				Str("provider", h.Name).
				Str("last_error", h.LastError).
				Msg("provider circuit open")
		}
	}
	if len(health) > 0 && open == len(health) {
		return fmt.Errorf("health check failed: %d/%d provider circuits open", open, len(health))
	}

	d.logger.Debug().Int("providers", len(health)).Msg("health check passed")
	return nil
}
