package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/config"
	apperrors "github.com/ShepherdHQ/shepherd-backend/errors"
	"github.com/ShepherdHQ/shepherd-backend/internal/store"
	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// MaxBatchSize is the hard per-call message limit of the push gateway.
	// Configured batch sizes are clamped to it.
	MaxBatchSize = 100

	// deviceNotRegisteredError is the gateway detail signaling that the target
	// installation no longer exists. The token is pruned and never retried.
	deviceNotRegisteredError = "DeviceNotRegistered"
)

// PushDispatcher turns rendered messages into gateway deliveries for one
// tenant. Implementations are best-effort: a failed dispatch is reported in
// the result and the returned error, but callers log it and move on.
type PushDispatcher interface {
	Dispatch(ctx context.Context, tenantID string, messages []types.PushMessage) (*types.DispatchResult, error)
}

// gatewayMessage is the wire format of one entry in a gateway batch call
// (Expo push API shape).
type gatewayMessage struct {
	To       string            `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

// gatewayResponse is the gateway's batch response envelope.
type gatewayResponse struct {
	Data []gatewayTicket `json:"data"`
}

// gatewayTicket is one per-message outcome, positionally aligned with the
// request batch.
type gatewayTicket struct {
	Status  string               `json:"status"` // "ok" or "error"
	ID      string               `json:"id,omitempty"`
	Message string               `json:"message,omitempty"`
	Details *gatewayErrorDetails `json:"details,omitempty"`
}

type gatewayErrorDetails struct {
	Error string `json:"error,omitempty"`
}

type dispatcherMetrics struct {
	sentCount    prometheus.Counter
	failedCount  prometheus.Counter
	prunedTokens prometheus.Counter
	rateLimited  prometheus.Counter
	batchLatency prometheus.Histogram
}

type pushDispatcher struct {
	tokenStore store.PushTokenStore
	limiter    RateLimiterInterface
	httpClient *http.Client
	cfg        config.PushConfig
	limit      int
	window     time.Duration
	metrics    *dispatcherMetrics
	log        *zap.SugaredLogger
}

// NewPushDispatcher creates the gateway-backed dispatcher.
func NewPushDispatcher(
	pushCfg config.PushConfig,
	limitCfg config.RateLimitConfig,
	tokenStore store.PushTokenStore,
	limiter RateLimiterInterface,
) PushDispatcher {
	return NewPushDispatcherWithRegistry(pushCfg, limitCfg, tokenStore, limiter, prometheus.DefaultRegisterer)
}

// NewPushDispatcherWithRegistry is NewPushDispatcher with an injectable
// Prometheus registry for test isolation.
func NewPushDispatcherWithRegistry(
	pushCfg config.PushConfig,
	limitCfg config.RateLimitConfig,
	tokenStore store.PushTokenStore,
	limiter RateLimiterInterface,
	reg prometheus.Registerer,
) PushDispatcher {
	if pushCfg.BatchSize <= 0 || pushCfg.BatchSize > MaxBatchSize {
		pushCfg.BatchSize = MaxBatchSize
	}

	metrics := &dispatcherMetrics{
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_push_sent_total",
			Help: "Total number of push messages accepted by the gateway",
		}),
		failedCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_push_failed_total",
			Help: "Total number of push messages the gateway rejected or never received",
		}),
		prunedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_push_pruned_tokens_total",
			Help: "Total number of tokens removed after the gateway reported them unregistered",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_push_rate_limited_total",
			Help: "Total number of dispatch calls rejected by the per-tenant budget",
		}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shepherd_push_batch_duration_seconds",
			Help:    "Time taken for one gateway batch call",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	reg.MustRegister(metrics.sentCount)
	reg.MustRegister(metrics.failedCount)
	reg.MustRegister(metrics.prunedTokens)
	reg.MustRegister(metrics.rateLimited)
	reg.MustRegister(metrics.batchLatency)

	return &pushDispatcher{
		tokenStore: tokenStore,
		limiter:    limiter,
		httpClient: &http.Client{
			Timeout: time.Duration(pushCfg.TimeoutSeconds) * time.Second,
		},
		cfg:     pushCfg,
		limit:   limitCfg.DispatchPerMinute,
		window:  time.Duration(limitCfg.WindowSeconds) * time.Second,
		metrics: metrics,
		log:     logger.GetLogger().Named("push-dispatcher"),
	}
}

// Dispatch resolves every recipient's active tokens within the tenant, fans
// the messages out to the gateway in batches, and interprets per-message
// tickets. Tokens the gateway reports as permanently invalid are deleted so
// they are never targeted again.
func (d *pushDispatcher) Dispatch(ctx context.Context, tenantID string, messages []types.PushMessage) (*types.DispatchResult, error) {
	result := &types.DispatchResult{}
	if len(messages) == 0 {
		return result, nil
	}

	if err := d.checkBudget(ctx, tenantID); err != nil {
		return result, err
	}

	userIDs := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if _, ok := seen[m.RecipientID]; ok {
			continue
		}
		seen[m.RecipientID] = struct{}{}
		userIDs = append(userIDs, m.RecipientID)
	}

	// Token lookup is always scoped to the tenant; there is no path that can
	// hand a message to another tenant's device.
	tokens, err := d.tokenStore.ActiveTokensForUsers(ctx, tenantID, userIDs)
	if err != nil {
		d.metrics.failedCount.Add(float64(len(messages)))
		result.Failed = len(messages)
		result.Errors = append(result.Errors, fmt.Sprintf("token lookup failed: %v", err))
		return result, apperrors.Wrap(err, apperrors.DatabaseError, "failed to load device tokens")
	}

	tokensByUser := make(map[string][]string, len(tokens))
	for _, t := range tokens {
		tokensByUser[t.UserID] = append(tokensByUser[t.UserID], t.Token)
	}

	batch := make([]gatewayMessage, 0, len(tokens))
	for _, m := range messages {
		for _, token := range tokensByUser[m.RecipientID] {
			batch = append(batch, gatewayMessage{
				To:       token,
				Title:    m.Title,
				Body:     m.Body,
				Data:     m.Data,
				Sound:    "default",
				Priority: string(m.Priority),
			})
		}
	}

	if len(batch) == 0 {
		d.log.Debugw("No active device tokens for any recipient",
			"tenantId", tenantID,
			"recipients", len(userIDs))
		return result, nil
	}

	var touched []string
	transportFailures := 0
	chunks := 0

	for i := 0; i < len(batch); i += d.cfg.BatchSize {
		end := i + d.cfg.BatchSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[i:end]
		chunks++

		tickets, err := d.sendBatch(ctx, chunk)
		if err != nil {
			// Whole-chunk transport failure: every message in it counts as
			// failed with one aggregated error. No in-invocation retry; the
			// next triggering event is the retry mechanism.
			transportFailures++
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, fmt.Sprintf("gateway call failed for %d messages: %v", len(chunk), err))
			d.metrics.failedCount.Add(float64(len(chunk)))
			continue
		}

		touched = append(touched, d.interpretTickets(ctx, tenantID, chunk, tickets, result)...)
	}

	if len(touched) > 0 {
		if err := d.tokenStore.TouchLastUsed(ctx, tenantID, touched); err != nil {
			d.log.Warnw("Failed to stamp last_used_at on delivered tokens",
				"tenantId", tenantID,
				"tokens", len(touched),
				"error", err)
		}
	}

	d.log.Infow("Dispatch completed",
		"tenantId", tenantID,
		"recipients", len(userIDs),
		"gatewayMessages", len(batch),
		"chunks", chunks,
		"sent", result.Sent,
		"failed", result.Failed,
		"pruned", result.PrunedTokens)

	if transportFailures == chunks {
		return result, apperrors.GatewayUnavailable(fmt.Errorf("%d of %d gateway calls failed", transportFailures, chunks))
	}
	return result, nil
}

// checkBudget enforces the shared per-tenant dispatch window. A Redis outage
// fails open: losing rate limiting is preferable to losing notifications.
func (d *pushDispatcher) checkBudget(ctx context.Context, tenantID string) error {
	allowed, retryAfter, err := d.limiter.CheckLimit(ctx, "dispatch:"+tenantID, d.limit, d.window)
	if err != nil {
		d.log.Warnw("Rate limiter unavailable, allowing dispatch",
			"tenantId", tenantID,
			"error", err)
		return nil
	}
	if !allowed {
		d.metrics.rateLimited.Inc()
		d.log.Warnw("Dispatch rejected by tenant budget",
			"tenantId", tenantID,
			"retryAfter", retryAfter)
		return apperrors.RateLimitExceeded(tenantID)
	}
	return nil
}

// sendBatch POSTs one chunk to the gateway and decodes its tickets.
func (d *pushDispatcher) sendBatch(ctx context.Context, chunk []gatewayMessage) ([]gatewayTicket, error) {
	start := time.Now()
	defer func() {
		d.metrics.batchLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if d.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.AccessToken)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}

	return parsed.Data, nil
}

// interpretTickets walks the positionally aligned tickets of one chunk,
// updating the result and pruning permanently invalid tokens. Returns the
// tokens that received a push, for last-used bookkeeping. Messages the
// gateway never answered count as failed, so Sent+Failed always covers the
// whole chunk.
func (d *pushDispatcher) interpretTickets(ctx context.Context, tenantID string, chunk []gatewayMessage, tickets []gatewayTicket, result *types.DispatchResult) []string {
	delivered := make([]string, 0, len(tickets))

	if len(tickets) < len(chunk) {
		missing := len(chunk) - len(tickets)
		result.Failed += missing
		d.metrics.failedCount.Add(float64(missing))
		result.Errors = append(result.Errors, fmt.Sprintf("gateway returned %d tickets for %d messages", len(tickets), len(chunk)))
		d.log.Warnw("Gateway returned a short ticket list",
			"tenantId", tenantID,
			"messages", len(chunk),
			"tickets", len(tickets))
	}

	for i, ticket := range tickets {
		if i >= len(chunk) {
			break
		}
		token := chunk[i].To

		switch ticket.Status {
		case "ok":
			result.Sent++
			d.metrics.sentCount.Inc()
			delivered = append(delivered, token)

		case "error":
			result.Failed++
			d.metrics.failedCount.Inc()

			detail := ticket.Message
			if ticket.Details != nil && ticket.Details.Error != "" {
				detail = ticket.Details.Error
			}
			result.Errors = append(result.Errors, fmt.Sprintf("token %s: %s", logger.MaskDeviceToken(token), detail))

			if d.isDeviceNotRegistered(ticket) {
				if err := d.tokenStore.Delete(ctx, tenantID, token); err != nil {
					d.log.Errorw("Failed to prune unregistered token",
						"tenantId", tenantID,
						"token", logger.MaskDeviceToken(token),
						"error", err)
				} else {
					result.PrunedTokens++
					d.metrics.prunedTokens.Inc()
					d.log.Debugw("Pruned unregistered token",
						"tenantId", tenantID,
						"token", logger.MaskDeviceToken(token))
				}
			}

		default:
			result.Failed++
			d.metrics.failedCount.Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("token %s: unexpected ticket status %q", logger.MaskDeviceToken(token), ticket.Status))
		}
	}

	return delivered
}

func (d *pushDispatcher) isDeviceNotRegistered(ticket gatewayTicket) bool {
	if ticket.Details != nil && ticket.Details.Error == deviceNotRegisteredError {
		return true
	}
	return ticket.Message == deviceNotRegisteredError
}
