package cache

import (
	"context"
	"time"

	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	"github.com/cschleiden/loanflow/workflow/executor"
	"github.com/jellydator/ttlcache/v3"
)

type executorCache struct {
	mc metrics.Client
	c  *ttlcache.Cache[string, executor.WorkflowExecutor]
}

var _ executor.ExecutorCache = (*executorCache)(nil)

// NewExecutorCache returns a size bounded cache. Entries not accessed for longer than expiration
// are dropped, evicted executors are closed.
func NewExecutorCache(mc metrics.Client, size int, expiration time.Duration) *executorCache {
	c := ttlcache.New(
		ttlcache.WithCapacity[string, executor.WorkflowExecutor](uint64(size)),
		ttlcache.WithTTL[string, executor.WorkflowExecutor](expiration),
	)

	c.OnEviction(func(_ context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, executor.WorkflowExecutor]) {
		i.Value().Close()

		mc.Counter(metrickeys.WorkflowInstanceCacheEviction, metrics.Tags{metrickeys.EvictionReason: evictionReason(er)}, 1)
	})

	return &executorCache{
		mc: mc,
		c:  c,
	}
}

func evictionReason(er ttlcache.EvictionReason) string {
	switch er {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func (ec *executorCache) Get(_ context.Context, instance *core.WorkflowInstance) (executor.WorkflowExecutor, bool, error) {
	if i := ec.c.Get(instance.String()); i != nil {
		return i.Value(), true, nil
	}

	return nil, false, nil
}

func (ec *executorCache) Store(_ context.Context, instance *core.WorkflowInstance, e executor.WorkflowExecutor) error {
	ec.c.Set(instance.String(), e, ttlcache.DefaultTTL)

	ec.mc.Gauge(metrickeys.WorkflowInstanceCacheSize, metrics.Tags{}, int64(ec.c.Len()))

	return nil
}

func (ec *executorCache) Evict(_ context.Context, instance *core.WorkflowInstance) error {
	ec.c.Delete(instance.String())

	ec.mc.Gauge(metrickeys.WorkflowInstanceCacheSize, metrics.Tags{}, int64(ec.c.Len()))

	return nil
}

func (ec *executorCache) StartEviction(ctx context.Context) {
	go ec.c.Start()

	<-ctx.Done()

	ec.c.Stop()
}
