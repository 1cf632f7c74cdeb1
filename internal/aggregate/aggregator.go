package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"streamgate/internal/domain"
	"streamgate/internal/metrics"
	"streamgate/internal/sources"
)

// AddonLister yields the addons installed by one user.
type AddonLister interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Addon, error)
}

// jsonGetter matches httpx.Client.
type jsonGetter interface {
	GetJSON(ctx context.Context, url string) ([]byte, error)
}

const connectorDeadline = 10 * time.Second

// Aggregator fans a stream lookup out across the user's addons and the
// built-in connectors, then merges, dedupes and ranks the results.
// Individual connector failures are logged and never fail the lookup.
type Aggregator struct {
	addons   AddonLister
	client   jsonGetter
	builtins []sources.Connector
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(addons AddonLister, client jsonGetter, builtins []sources.Connector, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		addons:   addons,
		client:   client,
		builtins: builtins,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the politeness limiter for one source, creating it on
// first use.
func (a *Aggregator) limiter(name string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	lim, ok := a.limiters[name]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(1), 3)
		a.limiters[name] = lim
	}
	return lim
}

// Search resolves all candidate streams for the fingerprint. The result
// is deduped by info-hash (first task wins) and sorted best-first.
func (a *Aggregator) Search(ctx context.Context, fp domain.Fingerprint, userID string) ([]domain.Stream, error) {
	metrics.AggregatorSearchesTotal.Inc()

	tasks := a.connectors(ctx, fp, userID)
	if len(tasks) == 0 {
		return nil, nil
	}

	results := make([][]domain.Stream, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, connectorDeadline)
			defer cancel()

			if err := a.limiter(task.Name()).Wait(callCtx); err != nil {
				return nil
			}
			started := time.Now()
			streams, err := task.Search(callCtx, fp)
			metrics.ConnectorDuration.WithLabelValues(task.Name()).Observe(time.Since(started).Seconds())
			if err != nil {
				metrics.ConnectorFailuresTotal.WithLabelValues(task.Name()).Inc()
				a.logger.Warn("connector failed",
					slog.String("source", task.Name()),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = streams
			return nil
		})
	}
	_ = g.Wait()

	// Flatten in task order so dedupe's first-wins rule is deterministic.
	var merged []domain.Stream
	for _, streams := range results {
		merged = append(merged, streams...)
	}
	merged = dedupe(merged)
	rank(merged)
	return merged, nil
}

// connectors assembles the task list: one client per stream-capable addon
// plus every built-in that understands the fingerprint.
func (a *Aggregator) connectors(ctx context.Context, fp domain.Fingerprint, userID string) []sources.Connector {
	var tasks []sources.Connector

	if a.addons != nil && userID != "" {
		addons, err := a.addons.ListByUser(ctx, userID)
		if err != nil {
			a.logger.Warn("addon list failed", slog.String("error", err.Error()))
		}
		for _, addon := range addons {
			c := sources.NewAddonClient(addon, a.client)
			if c.Supports(fp) {
				tasks = append(tasks, c)
			}
		}
	}
	for _, c := range a.builtins {
		if c.Supports(fp) {
			tasks = append(tasks, c)
		}
	}
	return tasks
}
