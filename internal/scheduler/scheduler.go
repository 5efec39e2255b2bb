// Package scheduler runs periodic housekeeping for broadcast rounds.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/common/metrics"

	"github.com/robfig/cron/v3"
)

// StaleRoundCloser is satisfied by store.RoundStore.
type StaleRoundCloser interface {
	CloseStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// RoundCloser marks in-progress rounds older than a TTL as closed. Closing
// is informational: tokens of a closed round stay clickable.
type RoundCloser struct {
	spec   string
	rounds StaleRoundCloser
	logger logger.Logger
	cron   *cron.Cron
	now    func() time.Time

	mu  sync.Mutex
	ttl time.Duration
}

func NewRoundCloser(spec string, ttl time.Duration, rounds StaleRoundCloser, log logger.Logger) *RoundCloser {
	l := log.WithFields(map[string]interface{}{"component": "scheduler"})
	cl := cronLogger{l}
	return &RoundCloser{
		spec:   spec,
		rounds: rounds,
		logger: l,
		ttl:    ttl,
		now:    time.Now,
		// SecondOptional accepts both 5-field and 6-field specs.
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
	}
}

// Start registers the close job and starts the cron engine.
func (r *RoundCloser) Start() error {
	if _, err := r.cron.AddFunc(r.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = r.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule round closer %q: %w", r.spec, err)
	}
	r.cron.Start()
	r.logger.Info("round closer started", map[string]interface{}{"spec": r.spec, "ttl": r.TTL().String()})
	return nil
}

// Stop halts scheduling and returns a context done once a running job ends.
func (r *RoundCloser) Stop() context.Context {
	return r.cron.Stop()
}

func (r *RoundCloser) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.ttl = ttl
	r.mu.Unlock()
}

func (r *RoundCloser) TTL() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl
}

// RunOnce closes every in-progress round created before now minus the TTL.
func (r *RoundCloser) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.TTL()).UTC()
	n, err := r.rounds.CloseStale(ctx, cutoff)
	if err != nil {
		r.logger.Error("closing stale rounds failed", map[string]interface{}{"cutoff": cutoff, "error": err})
		return 0, err
	}
	if n > 0 {
		metrics.RoundsClosed.Add(float64(n))
		r.logger.Info("stale rounds closed", map[string]interface{}{"closed": n, "cutoff": cutoff})
	}
	return n, nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err
	c.l.Error("cron: "+msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
