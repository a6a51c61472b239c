package api

import (
	"sync"
	"time"

	"github.com/annel0/voxel-creatures/internal/creature"
)

// Snapshot - состояние мира, опубликованное циклом симуляции после тика
type Snapshot struct {
	Tick     uint64             `json:"tick"`
	Time     time.Time          `json:"time"`
	Entities []creature.Pose    `json:"entities"`
	LastStep creature.StepStats `json:"last_step"`
	Species  map[string]int     `json:"species"`
}

// SnapshotStore передаёт снимки из цикла симуляции в HTTP-обработчики.
// API никогда не обращается к миру напрямую.
type SnapshotStore struct {
	mu   sync.RWMutex
	last Snapshot
}

// NewSnapshotStore создаёт пустое хранилище
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Publish сохраняет снимок тика. Срез поз передаётся во владение хранилищу.
func (s *SnapshotStore) Publish(tick uint64, poses []creature.Pose, stats creature.StepStats) {
	counts := make(map[string]int)
	for _, p := range poses {
		counts[p.Species]++
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = Snapshot{
		Tick:     tick,
		Time:     time.Now(),
		Entities: poses,
		LastStep: stats,
		Species:  counts,
	}
}

// Latest возвращает последний опубликованный снимок
func (s *SnapshotStore) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Find ищет позу сущности по идентификатору в последнем снимке
func (s *SnapshotStore) Find(id uint64) (creature.Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.last.Entities {
		if p.ID == id {
			return p, true
		}
	}
	return creature.Pose{}, false
}
