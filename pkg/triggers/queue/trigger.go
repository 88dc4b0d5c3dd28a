// Package queue starts workflow runs from messages pushed onto a redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/triggers"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultAddr        = "localhost:6379"
	defaultPollTimeout = time.Second
	errorBackoff       = time.Second
)

var (
	ErrQueueRequired    = errors.New("queue trigger queue name is required")
	ErrCallbackRequired = errors.New("queue trigger callback is required")
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
	// PollTimeout bounds each BLPOP so the consumer notices Stop.
	PollTimeout time.Duration
}

type Trigger struct {
	config   Config
	client   redis.UniversalClient
	owned    bool
	callback triggers.Callback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	runs     sync.WaitGroup
}

type Option func(*Trigger)

// WithClient uses client instead of dialing Config.Addr. The caller keeps
// ownership of client.
func WithClient(client redis.UniversalClient) Option {
	return func(t *Trigger) {
		t.client = client
	}
}

func NewTrigger(config Config, logger *slog.Logger, opts ...Option) (*Trigger, error) {
	if config.Addr == "" {
		config.Addr = defaultAddr
	}

	if config.PollTimeout <= 0 {
		config.PollTimeout = defaultPollTimeout
	}

	trigger := &Trigger{
		config: config,
		stopCh: make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"provider", "redis",
			"queue", config.Queue,
		),
	}

	for _, opt := range opts {
		opt(trigger)
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.config.Queue == "" {
		return ErrQueueRequired
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	if callback == nil {
		return ErrCallbackRequired
	}

	t.logger.InfoContext(ctx, "Starting queue trigger")
	t.callback = callback

	if err := t.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) initializeClient(ctx context.Context) error {
	if t.client == nil {
		t.client = redis.NewClient(&redis.Options{
			Addr:     t.config.Addr,
			Password: t.config.Password,
			DB:       t.config.DB,
		})
		t.owned = true
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	t.logger.InfoContext(ctx, "Connected to Redis", "addr", t.config.Addr, "db", t.config.DB)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	t.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-t.stopCh:
			t.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := t.processMessage(ctx); err != nil {
				t.logger.ErrorContext(ctx, "Error processing message", "error", err)

				select {
				case <-time.After(errorBackoff):
				case <-t.stopCh:
				case <-ctx.Done():
				}
			}
		}
	}
}

func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, t.config.PollTimeout, t.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]
	t.logger.DebugContext(ctx, "Received message from queue", "message", message)

	data := ParseMessage(message)

	t.runs.Add(1)

	go func() {
		defer t.runs.Done()

		if err := t.callback(ctx, data); err != nil {
			t.logger.ErrorContext(ctx, "Error executing workflow for trigger", "error", err)
		}
	}()

	return nil
}

// ParseMessage turns a queue message into trigger data. A JSON object is used
// as is; anything else is wrapped as {"message": ...}. Both get a timestamp.
func ParseMessage(message string) map[string]any {
	var data map[string]any
	if err := json.Unmarshal([]byte(message), &data); err != nil || data == nil {
		data = map[string]any{"message": message}
	}

	return triggers.WithTimestamp(data)
}

// Stop ends the consumer and waits for the runs it started.
func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping queue trigger")

	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}

	t.wg.Wait()
	t.runs.Wait()

	if t.client != nil && t.owned {
		if err := t.client.Close(); err != nil {
			t.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
