// Package events carries domain events between the write paths and the
// notification pipeline over Redis Pub/Sub. Each tenant has its own channel,
// so a subscriber never sees another community's events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/config"
	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// channelPrefix namespaces event channels in Redis; the tenant ID is
	// appended per channel.
	channelPrefix = "shepherd:events:"

	handlerTimeout = 10 * time.Second

	defaultPublishTimeout   = 5 * time.Second
	defaultSubscribeTimeout = 10 * time.Second
	defaultBufferSize       = 100

	// consumerKey identifies the cross-instance consumer in the
	// subscriptions map.
	consumerKey = "*:event-consumer"
)

// ChannelForTenant returns the Redis channel carrying a tenant's events.
func ChannelForTenant(tenantID string) string {
	return channelPrefix + tenantID
}

// RedisEventService implements types.EventPublisher over Redis Pub/Sub and
// fans published events out to locally registered handlers (the notification
// trigger among them).
type RedisEventService struct {
	redisClient *redis.Client
	log         *zap.SugaredLogger
	metrics     *eventMetrics
	// instanceID marks events this process published, so the cross-instance
	// consumer does not hand them to the local handlers a second time.
	instanceID       string
	publishTimeout   time.Duration
	subscribeTimeout time.Duration
	mu               sync.RWMutex
	handlers         map[types.EventType][]types.EventHandler
	subscriptions    map[string]subscription // key: tenantID:subscriberID
	bufferSize       int
}

var _ types.EventPublisher = (*RedisEventService)(nil)

type subscription struct {
	pubsub    *redis.PubSub
	cancelCtx context.CancelFunc
}

type eventMetrics struct {
	publishLatency   prometheus.Histogram
	subscribeLatency prometheus.Histogram
	errorCount       prometheus.Counter
	eventCount       *prometheus.CounterVec
}

// Singleton pattern for metrics (avoid double registration in tests).
var (
	eventMetricsInstance *eventMetrics
	eventMetricsOnce     sync.Once
	eventMetricsRegistry = prometheus.DefaultRegisterer
)

func newEventMetrics() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventMetricsInstance = &eventMetrics{
			publishLatency: promauto.With(eventMetricsRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "shepherd_event_publish_duration_seconds",
				Help:    "Time taken to publish events",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			}),
			subscribeLatency: promauto.With(eventMetricsRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "shepherd_event_subscribe_duration_seconds",
				Help:    "Time taken to establish subscriptions",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			}),
			errorCount: promauto.With(eventMetricsRegistry).NewCounter(prometheus.CounterOpts{
				Name: "shepherd_event_errors_total",
				Help: "Total number of event processing errors",
			}),
			eventCount: promauto.With(eventMetricsRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "shepherd_events_processed_total",
				Help: "Total number of events processed",
			}, []string{"event_type"}),
		}
	})
	return eventMetricsInstance
}

// resetEventMetricsForTesting resets the metrics singleton for test isolation.
// This should only be called from tests.
func resetEventMetricsForTesting() {
	eventMetricsRegistry = prometheus.NewRegistry()
	eventMetricsInstance = nil
	eventMetricsOnce = sync.Once{}
}

// NewRedisEventService returns a new RedisEventService. cfg.EventBufferSize
// caps the per-subscriber delivery channel; events beyond it are dropped, not
// queued. Zero config fields fall back to defaults.
func NewRedisEventService(redisClient *redis.Client, cfg config.EventServiceConfig) *RedisEventService {
	bufferSize := cfg.EventBufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	publishTimeout := time.Duration(cfg.PublishTimeoutSeconds) * time.Second
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	subscribeTimeout := time.Duration(cfg.SubscribeTimeoutSeconds) * time.Second
	if subscribeTimeout <= 0 {
		subscribeTimeout = defaultSubscribeTimeout
	}

	return &RedisEventService{
		redisClient:      redisClient,
		log:              logger.GetLogger().Named("event-service"),
		metrics:          newEventMetrics(),
		instanceID:       uuid.New().String(),
		publishTimeout:   publishTimeout,
		subscribeTimeout: subscribeTimeout,
		handlers:         make(map[types.EventType][]types.EventHandler),
		subscriptions:    make(map[string]subscription),
		bufferSize:       bufferSize,
	}
}

// RegisterHandler registers a handler for one event type.
func (r *RedisEventService) RegisterHandler(eventType types.EventType, handler types.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[eventType] = append(r.handlers[eventType], handler)
	r.log.Infow("Registered event handler",
		"eventType", eventType,
		"handler", fmt.Sprintf("%T", handler))
}

// RegisterHandlers registers a handler for every event type it supports.
func (r *RedisEventService) RegisterHandlers(handler types.EventHandler) {
	for _, eventType := range handler.SupportedEvents() {
		r.RegisterHandler(eventType, handler)
	}
}

// Publish serializes the event onto the tenant's channel and hands it to
// local handlers. Handlers run on their own goroutines with their own
// timeout: a slow notification pipeline cannot block the publishing write
// path.
func (r *RedisEventService) Publish(ctx context.Context, tenantID string, event types.Event) error {
	startTime := time.Now()
	defer func() {
		r.metrics.publishLatency.Observe(time.Since(startTime).Seconds())
	}()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	event.Metadata.Origin = r.instanceID

	if err := event.Validate(); err != nil {
		r.metrics.errorCount.Inc()
		return fmt.Errorf("invalid event: %w", err)
	}

	channel := ChannelForTenant(tenantID)
	data, err := json.Marshal(event)
	if err != nil {
		r.metrics.errorCount.Inc()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	r.metrics.eventCount.WithLabelValues(string(event.Type)).Inc()
	r.log.Debugw("Publishing event",
		"channel", channel,
		"eventType", event.Type,
		"eventId", event.ID,
		"payloadSize", len(data))

	publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	if err := r.redisClient.Publish(publishCtx, channel, data).Err(); err != nil {
		r.metrics.errorCount.Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	r.dispatchToHandlers(event)
	return nil
}

// PublishBatch publishes several events in one Redis pipeline.
func (r *RedisEventService) PublishBatch(ctx context.Context, tenantID string, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := r.redisClient.Pipeline()
	channel := ChannelForTenant(tenantID)

	for _, event := range events {
		event.Metadata.Origin = r.instanceID
		if err := event.Validate(); err != nil {
			r.metrics.errorCount.Inc()
			return fmt.Errorf("invalid event in batch: %w", err)
		}

		data, err := json.Marshal(event)
		if err != nil {
			r.metrics.errorCount.Inc()
			return fmt.Errorf("failed to marshal event in batch: %w", err)
		}

		pipe.Publish(ctx, channel, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.metrics.errorCount.Inc()
		return fmt.Errorf("failed to publish batch: %w", err)
	}

	r.metrics.eventCount.WithLabelValues("batch").Add(float64(len(events)))

	for _, event := range events {
		r.dispatchToHandlers(event)
	}
	return nil
}

func (r *RedisEventService) dispatchToHandlers(event types.Event) {
	r.mu.RLock()
	handlers := r.handlers[event.Type]
	r.mu.RUnlock()

	for _, handler := range handlers {
		handler := handler
		go func() {
			handlerCtx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			defer cancel()

			if err := handler.HandleEvent(handlerCtx, event); err != nil {
				r.metrics.errorCount.Inc()
				r.log.Errorw("Event handler failed",
					"error", err,
					"eventType", event.Type,
					"eventId", event.ID,
					"handler", fmt.Sprintf("%T", handler))
			}
		}()
	}
}

// StartConsumer subscribes to every tenant's event channel and routes
// incoming events to the registered handlers. This is how events published by
// other instances reach the local notification pipeline; events this instance
// published are skipped because Publish already dispatched them. The consumer
// runs until Shutdown.
func (r *RedisEventService) StartConsumer(ctx context.Context) error {
	pubsub := r.redisClient.PSubscribe(ctx, channelPrefix+"*")

	receiveCtx, cancel := context.WithTimeout(ctx, r.subscribeTimeout)
	defer cancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		if closeErr := pubsub.Close(); closeErr != nil {
			r.log.Warnw("Error closing failed consumer subscription", "error", closeErr)
		}
		return fmt.Errorf("failed to subscribe to event channels: %w", err)
	}

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	r.mu.Lock()
	r.subscriptions[consumerKey] = subscription{
		pubsub:    pubsub,
		cancelCtx: cancelConsumer,
	}
	r.mu.Unlock()

	go r.consumeLoop(consumerCtx, pubsub)

	r.log.Infow("Event consumer started", "pattern", channelPrefix+"*")
	return nil
}

func (r *RedisEventService) consumeLoop(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.log.Info("Event consumer channel closed")
				return
			}
			r.handleIncoming(msg.Payload)
		case <-ctx.Done():
			r.log.Info("Event consumer stopped")
			return
		}
	}
}

// handleIncoming routes one wire event to the registered handlers.
func (r *RedisEventService) handleIncoming(payload string) {
	var event types.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		r.metrics.errorCount.Inc()
		r.log.Errorw("Failed to unmarshal incoming event",
			"error", err,
			"payload", payload)
		return
	}

	if event.Metadata.Origin == r.instanceID {
		return
	}

	r.metrics.eventCount.WithLabelValues(string(event.Type)).Inc()
	r.dispatchToHandlers(event)
}

// Subscribe delivers a tenant's events to the returned channel until
// Unsubscribe or Shutdown. An existing subscription for the same
// tenant/subscriber pair is replaced.
func (r *RedisEventService) Subscribe(ctx context.Context, tenantID string, subscriberID string, filters ...types.EventType) (<-chan types.Event, error) {
	startTime := time.Now()
	defer func() {
		r.metrics.subscribeLatency.Observe(time.Since(startTime).Seconds())
	}()

	subscriptionKey := fmt.Sprintf("%s:%s", tenantID, subscriberID)
	r.mu.Lock()
	if _, exists := r.subscriptions[subscriptionKey]; exists {
		r.mu.Unlock()
		if err := r.Unsubscribe(ctx, tenantID, subscriberID); err != nil {
			r.log.Warnw("Failed to clean up existing subscription",
				"error", err,
				"tenantId", tenantID,
				"subscriberId", subscriberID)
		}
	} else {
		r.mu.Unlock()
	}

	pubsub := r.redisClient.Subscribe(ctx, ChannelForTenant(tenantID))
	eventChan := make(chan types.Event, r.bufferSize)
	subCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.subscriptions[subscriptionKey] = subscription{
		pubsub:    pubsub,
		cancelCtx: cancel,
	}
	r.mu.Unlock()

	go r.processSubscription(subCtx, pubsub, eventChan, tenantID, subscriberID, subscriptionKey, filters)

	return eventChan, nil
}

func (r *RedisEventService) processSubscription(
	ctx context.Context,
	pubsub *redis.PubSub,
	eventChan chan types.Event,
	tenantID string,
	subscriberID string,
	subscriptionKey string,
	filters []types.EventType,
) {
	defer func() {
		close(eventChan)

		r.mu.Lock()
		delete(r.subscriptions, subscriptionKey)
		r.mu.Unlock()

		if err := pubsub.Close(); err != nil {
			r.log.Warnw("Error closing Redis pubsub", "error", err)
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.log.Infow("Redis pubsub channel closed",
					"tenantId", tenantID,
					"subscriberId", subscriberID)
				return
			}

			var event types.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.log.Errorw("Failed to unmarshal event",
					"error", err,
					"payload", msg.Payload)
				r.metrics.errorCount.Inc()
				continue
			}

			if len(filters) > 0 && !matchesFilter(event.Type, filters) {
				continue
			}

			select {
			case eventChan <- event:
				r.metrics.eventCount.WithLabelValues(string(event.Type)).Inc()
			default:
				r.log.Warnw("Event channel full, dropping event",
					"eventType", event.Type,
					"eventId", event.ID,
					"tenantId", tenantID,
					"subscriberId", subscriberID)
			}

		case <-ctx.Done():
			r.log.Infow("Subscription context canceled",
				"tenantId", tenantID,
				"subscriberId", subscriberID)
			return
		}
	}
}

func matchesFilter(eventType types.EventType, filters []types.EventType) bool {
	for _, filter := range filters {
		if eventType == filter {
			return true
		}
	}
	return false
}

// Unsubscribe tears down one subscription. Unsubscribing an absent pair is a
// no-op.
func (r *RedisEventService) Unsubscribe(ctx context.Context, tenantID string, subscriberID string) error {
	key := fmt.Sprintf("%s:%s", tenantID, subscriberID)

	r.mu.Lock()
	sub, exists := r.subscriptions[key]
	if !exists {
		r.mu.Unlock()
		return nil
	}
	delete(r.subscriptions, key)
	r.mu.Unlock()

	sub.cancelCtx()

	if err := sub.pubsub.Close(); err != nil {
		r.log.Errorw("Failed to close Redis subscription",
			"error", err,
			"tenantId", tenantID,
			"subscriberId", subscriberID)
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	return nil
}

// Shutdown closes all active subscriptions.
func (r *RedisEventService) Shutdown(ctx context.Context) error {
	r.log.Info("Shutting down event service")

	r.mu.Lock()
	for key, sub := range r.subscriptions {
		r.log.Debugw("Closing subscription during shutdown", "key", key)
		sub.cancelCtx()
		if err := sub.pubsub.Close(); err != nil {
			r.log.Warnw("Error closing subscription", "key", key, "error", err)
		}
	}
	r.subscriptions = make(map[string]subscription)
	r.mu.Unlock()

	return nil
}

// HealthCheck reports whether the underlying Redis connection is usable.
func (r *RedisEventService) HealthCheck(ctx context.Context) error {
	if err := r.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("event service unhealthy: %w", err)
	}
	return nil
}
