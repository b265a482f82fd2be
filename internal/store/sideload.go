package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// SideloadGuard keeps the database file stable while it is copied out.
// Readers continue, including while a writer is queued; writers wait until End.
type SideloadGuard struct {
	store *Store
	once  sync.Once
}

type checkpointResult struct {
	Busy         int `gorm:"column:busy"`
	Log          int `gorm:"column:log"`
	Checkpointed int `gorm:"column:checkpointed"`
}

// BeginSideload flushes the write-ahead log into the main file and returns a
// guard holding a sideload on the gate.
func (s *Store) BeginSideload(ctx context.Context) (*SideloadGuard, error) {
	s.gate.beginSideload()
	if s.db == nil {
		s.gate.endSideload()
		return nil, ErrNotOpen
	}

	var result checkpointResult
	if err := s.db.WithContext(ctx).Raw("PRAGMA wal_checkpoint(TRUNCATE)").Scan(&result).Error; err != nil {
		s.gate.endSideload()
		s.logger.Error("sideload checkpoint failed", zap.Error(err))
		return nil, err
	}
	if result.Busy != 0 {
		s.logger.Warn("sideload checkpoint incomplete",
			zap.Int("log_frames", result.Log),
			zap.Int("checkpointed_frames", result.Checkpointed))
	}
	s.logger.Info("sideload started")
	return &SideloadGuard{store: s}, nil
}

// End releases the sideload hold. Further calls do nothing.
func (g *SideloadGuard) End() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.store.gate.endSideload()
		g.store.logger.Info("sideload ended")
	})
}
