package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/ShepherdHQ/shepherd-backend/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dbPingAttempts = 3
	dbPingDelay    = 100 * time.Millisecond
	// A freshly started instance is still warming its pool; use a more
	// lenient saturation threshold for the first few minutes.
	matureInstanceAge = 5 * time.Minute
)

// DBPool is the subset of pgxpool.Pool the health service needs. It exists so
// tests can substitute a pgxmock pool.
type DBPool interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
	Config() *pgxpool.Config
	Close()
}

type HealthService struct {
	dbPool      DBPool
	redisClient *redis.Client
	version     string
	log         *zap.SugaredLogger
	startTime   time.Time

	// activeConnections, when set, reports the number of live event
	// subscriptions for the detailed health view.
	activeConnections func() int
}

func NewHealthService(dbPool DBPool, redisClient *redis.Client, version string) *HealthService {
	return &HealthService{
		dbPool:      dbPool,
		redisClient: redisClient,
		version:     version,
		log:         logger.GetLogger(),
		startTime:   time.Now(),
	}
}

// SetActiveConnectionsGetter wires a callback reporting live event
// subscriptions into the health response.
func (h *HealthService) SetActiveConnectionsGetter(getter func() int) {
	h.activeConnections = getter
}

func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := make(map[string]types.HealthComponent)
	overallStatus := types.HealthStatusUp

	// Check database
	dbStatus := h.checkDatabase(ctx)
	components["database"] = dbStatus
	if dbStatus.Status == types.HealthStatusDown {
		overallStatus = types.HealthStatusDown
	} else if dbStatus.Status == types.HealthStatusDegraded {
		overallStatus = types.HealthStatusDegraded
	}

	// Check Redis
	redisStatus := h.checkRedis(ctx)
	components["redis"] = redisStatus
	if redisStatus.Status == types.HealthStatusDown {
		overallStatus = types.HealthStatusDown
	} else if redisStatus.Status == types.HealthStatusDegraded && overallStatus != types.HealthStatusDown {
		overallStatus = types.HealthStatusDegraded
	}

	if h.activeConnections != nil {
		components["event_subscriptions"] = types.HealthComponent{
			Status:  types.HealthStatusUp,
			Details: fmt.Sprintf("%d active", h.activeConnections()),
		}
	}

	return types.HealthCheck{
		Status:     overallStatus,
		Components: components,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
}

func (h *HealthService) checkDatabase(ctx context.Context) types.HealthComponent {
	var lastErr error
	for attempt := 1; attempt <= dbPingAttempts; attempt++ {
		lastErr = h.dbPool.Ping(ctx)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			h.log.Errorw("Database health check aborted", "error", lastErr)
			return types.HealthComponent{
				Status:  types.HealthStatusDown,
				Details: "Database connection failed",
			}
		}
		if attempt < dbPingAttempts {
			time.Sleep(dbPingDelay)
		}
	}
	if lastErr != nil {
		h.log.Errorw("Database health check failed", "error", lastErr, "attempts", dbPingAttempts)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Database connection failed after multiple attempts",
		}
	}

	// Check pool saturation against the configured ceiling
	stat := h.dbPool.Stat()
	cfg := h.dbPool.Config()
	if cfg != nil && cfg.MaxConns > 0 {
		threshold := 0.95
		if time.Since(h.startTime) > matureInstanceAge {
			threshold = 0.8
		}
		usage := float64(stat.AcquiredConns()) / float64(cfg.MaxConns)
		if usage > threshold {
			return types.HealthComponent{
				Status:  types.HealthStatusDegraded,
				Details: "Connection pool near capacity",
			}
		}
	}

	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}

func (h *HealthService) checkRedis(ctx context.Context) types.HealthComponent {
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.log.Errorw("Redis health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Redis connection failed",
		}
	}

	return types.HealthComponent{
		Status: types.HealthStatusUp,
	}
}
