package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultReapSchedule runs the reaper every five minutes
const DefaultReapSchedule = "*/5 * * * *"

const reapWorkers = 8

// Reaper prunes session ids whose records have expired from the per-user sets
type Reaper struct {
	store    storage.Store
	logger   logrus.FieldLogger
	timeout  time.Duration
	onReaped func(removed int64)
}

// NewReaper creates a session-set reaper
func NewReaper(store storage.Store, logger logrus.FieldLogger) *Reaper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reaper{
		store:   store,
		logger:  logger,
		timeout: 2 * time.Minute,
	}
}

// OnReaped registers fn to receive the removal count of each scheduled run
func (r *Reaper) OnReaped(fn func(removed int64)) {
	r.onReaped = fn
}

// Run scans every user session set once and returns how many members were removed
func (r *Reaper) Run(ctx context.Context) (int64, error) {
	var removed atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(reapWorkers)

	err := r.store.ScanKeys(ctx, storage.UserSessionsPattern, func(key string) error {
		owner, ok := storage.OwnerFromUserSessionsKey(key)
		if !ok {
			return nil
		}
		eg.Go(func() error {
			n, err := r.reapOwner(ctx, key, owner)
			removed.Add(n)
			return err
		})
		return nil
	})

	if werr := eg.Wait(); err == nil {
		err = werr
	}
	return removed.Load(), err
}

func (r *Reaper) reapOwner(ctx context.Context, key, owner string) (int64, error) {
	members, err := r.store.SetMembers(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for %s: %w", owner, err)
	}

	var stale []string
	for _, sessionID := range members {
		exists, err := r.store.Exists(ctx, storage.SessionKey(owner, sessionID))
		if err != nil {
			return 0, fmt.Errorf("failed to check session %s: %w", sessionID, err)
		}
		if !exists {
			stale = append(stale, sessionID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := r.store.SetRemove(ctx, key, stale...); err != nil {
		return 0, fmt.Errorf("failed to prune sessions for %s: %w", owner, err)
	}
	return int64(len(stale)), nil
}

// Schedule registers the reaper on c using a standard five-field cron spec
func (r *Reaper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultReapSchedule
	}
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		removed, err := r.Run(ctx)
		log := r.logger.WithFields(logrus.Fields{
			"removed":  removed,
			"duration": time.Since(start).String(),
		})
		if err != nil {
			log.WithError(err).Error("session reaper failed")
			return
		}
		if r.onReaped != nil {
			r.onReaped(removed)
		}
		log.Info("session reaper finished")
	})
}
