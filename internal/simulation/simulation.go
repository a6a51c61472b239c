// Package simulation запускает мир существ над демонстрационным рельефом по конфигурации
// и публикует снимки для отладочного API.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-creatures/internal/api"
	"github.com/annel0/voxel-creatures/internal/config"
	"github.com/annel0/voxel-creatures/internal/creature"
	"github.com/annel0/voxel-creatures/internal/eventbus"
	"github.com/annel0/voxel-creatures/internal/logging"
	"github.com/annel0/voxel-creatures/internal/storage"
	"github.com/annel0/voxel-creatures/internal/terrain"
)

// Параметры атаки хищника, которые применяет демонстрационная боевая логика
const (
	AttackDamage    = 2.0
	AttackKnockback = 4.0
)

// Simulation владеет миром и продвигает его с фиксированным шагом
type Simulation struct {
	cfg     *config.Config
	terrain *terrain.Grid
	world   *creature.World
	store   *api.SnapshotStore
	bus     eventbus.EventBus
	archive *storage.SnapshotArchive
	log     *logging.Logger

	tick uint64
}

// Option настраивает симуляцию
type Option func(*Simulation)

// WithEventBus публикует события существ в шину
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Simulation) { s.bus = bus }
}

// WithArchive сохраняет снимок раз в archive.every тиков
func WithArchive(a *storage.SnapshotArchive) Option {
	return func(s *Simulation) { s.archive = a }
}

// New строит рельеф, регистрирует виды и расставляет существ.
// reg может быть nil, тогда метрики мира не регистрируются.
func New(cfg *config.Config, store *api.SnapshotStore, reg prometheus.Registerer, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = api.NewSnapshotStore()
	}

	gen := terrain.NewGenerator(cfg.Terrain.Seed, cfg.Terrain.BaseHeight, cfg.Terrain.Amplitude)
	gen.NoiseScale = cfg.Terrain.NoiseScale
	grid := gen.Generate(cfg.Terrain.Size)

	s := &Simulation{
		cfg:     cfg,
		terrain: grid,
		store:   store,
		log:     logging.GetComponentLogger("simulation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.world = creature.NewWorld(grid, cfg.WorldSettings(),
		creature.WithMetrics(creature.NewMetrics(reg)),
		creature.WithHooks(creature.Hooks{
			OnAttack: s.onAttack,
			OnDeath:  s.onDeath,
		}),
	)

	for _, sp := range cfg.Species {
		if err := s.world.RegisterSpecies(sp); err != nil {
			return nil, fmt.Errorf("register species: %w", err)
		}
	}
	if err := s.spawnAll(); err != nil {
		return nil, err
	}

	s.log.Info("Мир готов: рельеф %dx%d (%d блоков), существ %d",
		cfg.Terrain.Size, cfg.Terrain.Size, grid.Count(), s.world.Len())
	s.publish(creature.StepStats{})
	return s, nil
}

// spawnAll расставляет группы существ на поверхности вокруг заданных точек
func (s *Simulation) spawnAll() error {
	rng := rand.New(rand.NewSource(s.cfg.Simulation.Seed))
	size := s.cfg.Terrain.Size
	top := s.cfg.Terrain.BaseHeight + s.cfg.Terrain.Amplitude + 2

	for _, sp := range s.cfg.Spawns {
		placed := 0
		for i := 0; i < sp.Count; i++ {
			angle := rng.Float64() * 2 * math.Pi
			dist := rng.Float64() * sp.Radius
			x := clampInt(int(math.Floor(sp.X+math.Cos(angle)*dist)), 0, size-1)
			z := clampInt(int(math.Floor(sp.Z+math.Sin(angle)*dist)), 0, size-1)

			y, ok := terrain.SurfaceY(s.terrain, x, z, top, 0)
			if !ok {
				s.log.Warn("Нет опоры для %s в колонке (%d, %d), пропуск", sp.Species, x, z)
				continue
			}
			h, err := s.world.Spawn(sp.Species, float64(x)+0.5, float64(y), float64(z)+0.5,
				creature.WithSeed(rng.Int63()))
			if err != nil {
				return fmt.Errorf("spawn %s: %w", sp.Species, err)
			}
			if pose, err := s.world.Pose(h); err == nil {
				s.emit(EventSpawn, 1, SpawnEvent{ID: pose.ID, Species: pose.Species, Seed: pose.Seed, Position: pose.Position})
			}
			placed++
		}
		s.log.Debug("Создано %d/%d существ вида %s", placed, sp.Count, sp.Species)
	}
	return nil
}

func (s *Simulation) onAttack(attacker, target creature.Handle) {
	src, err := s.world.Pose(attacker)
	if err != nil {
		return
	}
	dst, err := s.world.Pose(target)
	if err != nil {
		return
	}
	// Умирающая цель урона не получает, и событие атаки не публикуется
	if dst.Dying {
		return
	}

	if err := s.world.TakeDamageFrom(target, AttackDamage, src.Position); err != nil {
		s.log.Debug("Атака по %s не нанесена: %v", target, err)
		return
	}
	if err := s.world.ApplyKnockback(target, dst.Position.Sub(src.Position), AttackKnockback); err != nil {
		s.log.Debug("Отбрасывание %s не применено: %v", target, err)
	}
	s.log.Debug("%s [%s] атакует %s [%s]", src.Species, attacker, dst.Species, target)

	health := dst.Health
	if after, err := s.world.Pose(target); err == nil {
		health = after.Health
	}
	s.emit(EventAttack, 1, AttackEvent{
		Attacker:        src.ID,
		AttackerSpecies: src.Species,
		Target:          dst.ID,
		TargetSpecies:   dst.Species,
		Damage:          AttackDamage,
		TargetHealth:    health,
		Tick:            s.tick,
	})
}

func (s *Simulation) onDeath(h creature.Handle) {
	pose, err := s.world.Pose(h)
	if err != nil {
		return
	}
	s.log.Info("%s [%s] погибло", pose.Species, h)
	s.emit(EventDeath, eventbus.PriorityHigh, DeathEvent{
		ID:       pose.ID,
		Species:  pose.Species,
		Position: pose.Position,
		Tick:     s.tick,
	})
}

// World возвращает мир симуляции
func (s *Simulation) World() *creature.World {
	return s.world
}

// Tick продвигает мир на dt секунд, периодически сжимает арену и публикует снимок
func (s *Simulation) Tick(ctx context.Context, dt float64) creature.StepStats {
	stats := s.world.Step(ctx, dt)
	s.tick++

	if every := s.cfg.Simulation.CompactEvery; every > 0 && s.tick%uint64(every) == 0 {
		if freed := s.world.Compact(); freed > 0 {
			s.log.Debug("Тик %d: убрано %d мёртвых существ", s.tick, freed)
		}
	}

	poses := s.publish(stats)
	if s.archive != nil && s.tick%uint64(max(s.cfg.Archive.Every, 1)) == 0 {
		rec := storage.Record{Tick: s.tick, Time: time.Now().UTC(), Entities: poses, Stats: stats}
		if err := s.archive.Save(rec); err != nil {
			s.log.Warn("Тик %d: снимок не сохранён: %v", s.tick, err)
		}
	}
	return stats
}

func (s *Simulation) publish(stats creature.StepStats) []creature.Pose {
	poses := s.world.Snapshot()
	s.store.Publish(s.tick, poses, stats)
	return poses
}

// Run продвигает мир с частотой tick_rate до отмены ctx
func (s *Simulation) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.Simulation.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("Симуляция запущена: %d тиков/с", s.cfg.Simulation.TickRate)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Симуляция остановлена на тике %d", s.tick)
			return nil
		case now := <-ticker.C:
			// Реальный dt; мир сам ограничивает его сверху
			s.Tick(ctx, now.Sub(last).Seconds())
			last = now
		}
	}
}

// Ticks возвращает число выполненных тиков
func (s *Simulation) Ticks() uint64 {
	return s.tick
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
