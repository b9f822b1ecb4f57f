package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/media"
	"github.com/trakline/trakline/internal/storage"
)

// expiredRecord is one sweepable record: its id plus the media deletion keys
// that should be cleaned up before the record goes.
type expiredRecord struct {
	id         string
	deleteKeys []string
}

// Sweeper periodically deletes expired ephemeral records and their backing
// media. Media deletion is best effort; the record is removed regardless.
// Ticks are idempotent, so an overlapping run degrades to duplicate no-op
// deletes rather than corruption.
type Sweeper struct {
	media     media.Store
	log       *slog.Logger
	interval  time.Duration
	bootDelay time.Duration
	limit     int
	fetch     func(ctx context.Context, now time.Time, limit int) ([]expiredRecord, error)
	remove    func(ctx context.Context, id string) error
}

// NewStatusSweeper sweeps statuses past their 25h TTL.
func NewStatusSweeper(store storage.Store, mediaStore media.Store, log *slog.Logger, cfg config.SweepConfig) *Sweeper {
	return &Sweeper{
		media:     mediaStore,
		log:       componentLogger(log, "status"),
		interval:  cfg.StatusInterval,
		bootDelay: cfg.BootDelay,
		limit:     cfg.BatchLimit,
		fetch: func(ctx context.Context, now time.Time, limit int) ([]expiredRecord, error) {
			statuses, err := store.ListExpiredStatuses(ctx, now, limit)
			if err != nil {
				return nil, err
			}
			records := make([]expiredRecord, 0, len(statuses))
			for _, st := range statuses {
				records = append(records, expiredRecord{
					id:         st.ID,
					deleteKeys: []string{st.MediaDeleteKey, st.AudioDeleteKey},
				})
			}
			return records, nil
		},
		remove: store.DeleteStatus,
	}
}

// NewPostSweeper sweeps posts past their 7d TTL.
func NewPostSweeper(store storage.Store, mediaStore media.Store, log *slog.Logger, cfg config.SweepConfig) *Sweeper {
	return &Sweeper{
		media:     mediaStore,
		log:       componentLogger(log, "post"),
		interval:  cfg.PostInterval,
		bootDelay: cfg.BootDelay,
		limit:     cfg.BatchLimit,
		fetch: func(ctx context.Context, now time.Time, limit int) ([]expiredRecord, error) {
			posts, err := store.ListExpiredPosts(ctx, now, limit)
			if err != nil {
				return nil, err
			}
			records := make([]expiredRecord, 0, len(posts))
			for _, post := range posts {
				keys := make([]string, 0, len(post.Items))
				for _, item := range post.Items {
					keys = append(keys, item.MediaDeleteKey)
				}
				records = append(records, expiredRecord{id: post.ID, deleteKeys: keys})
			}
			return records, nil
		},
		remove: store.DeletePost,
	}
}

// Run blocks until ctx is canceled: one delayed sweep shortly after start,
// then one per interval tick.
func (s *Sweeper) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.bootDelay):
	}
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce processes one bounded batch of expired records. Failures are
// isolated per record and per media object; anything left over is retried on
// the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	records, err := s.fetch(ctx, now, s.limit)
	if err != nil {
		s.log.Warn("expired batch fetch failed", "err", err)
		return
	}
	for _, rec := range records {
		for _, key := range rec.deleteKeys {
			if key == "" {
				continue
			}
			if err := s.media.Delete(ctx, key); err != nil {
				s.log.Debug("media delete failed", "record", rec.id, "key", key, "err", err)
			}
		}
		if err := s.remove(ctx, rec.id); err != nil {
			s.log.Warn("record delete failed", "record", rec.id, "err", err)
			continue
		}
	}
	if len(records) > 0 {
		s.log.Info("swept expired records", "count", len(records))
	}
}

func componentLogger(log *slog.Logger, kind string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("sweeper", kind)
}
