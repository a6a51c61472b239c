// Package creature связывает физику, поиск пути и ИИ в арену существ с жизненным циклом,
// уроном и позами для визуального слоя.
package creature

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-creatures/internal/ai"
	"github.com/annel0/voxel-creatures/internal/logging"
	"github.com/annel0/voxel-creatures/internal/pathfind"
	"github.com/annel0/voxel-creatures/internal/physics"
	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

const tracerName = "github.com/annel0/voxel-creatures/internal/creature"

// Settings - глобальные параметры симуляции
type Settings struct {
	Seed         int64   // Сид ИИ-случайности мира
	MaxDeltaTime float64 // Ограничение шага, с
	PathBudget   int     // Бюджет раскрытий A* на один запрос
	WorldFloorY  float64
	RescueY      float64
}

// DefaultSettings возвращает параметры по умолчанию
func DefaultSettings() Settings {
	return Settings{
		MaxDeltaTime: physics.DefaultMaxDelta,
		PathBudget:   pathfind.DefaultBudget,
		WorldFloorY:  physics.DefaultWorldFloorY,
		RescueY:      physics.DefaultRescueY,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.MaxDeltaTime <= 0 {
		s.MaxDeltaTime = def.MaxDeltaTime
	}
	if s.PathBudget <= 0 {
		s.PathBudget = def.PathBudget
	}
	if s.WorldFloorY == 0 && s.RescueY == 0 {
		s.WorldFloorY = def.WorldFloorY
		s.RescueY = def.RescueY
	}
	return s
}

// Hooks - обратные вызовы для внешней боевой логики. Вызываются после тика, вне блокировки мира,
// поэтому из них можно обращаться к миру.
type Hooks struct {
	OnAttack func(attacker, target Handle)
	OnDeath  func(h Handle)
}

// StepStats - итоги одного тика
type StepStats struct {
	Updated int `json:"updated"`
	Attacks int `json:"attacks"`
	Deaths  int `json:"deaths"`
	Unstuck int `json:"unstuck"`
	Rescued int `json:"rescued"`
}

// Option настраивает мир
type Option func(*World)

// WithMetrics подключает метрики
func WithMetrics(m *Metrics) Option {
	return func(w *World) { w.metrics = m }
}

// WithTracer задаёт трассировщик тиков
func WithTracer(tr trace.Tracer) Option {
	return func(w *World) { w.tracer = tr }
}

// WithHooks задаёт обратные вызовы атаки и смерти
func WithHooks(h Hooks) Option {
	return func(w *World) { w.hooks = h }
}

// WithLogger задаёт логгер компонента
func WithLogger(l *logging.Logger) Option {
	return func(w *World) { w.log = l }
}

// SpawnOption настраивает создаваемую сущность
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	seed    int64
	hasSeed bool
}

// WithSeed задаёт сид визуальных вариаций. На ИИ и физику он не влияет.
func WithSeed(seed int64) SpawnOption {
	return func(c *spawnConfig) {
		c.seed = seed
		c.hasSeed = true
	}
}

type slot struct {
	entity     *Entity
	generation uint32
}

type attackEvent struct {
	attacker Handle
	target   Handle
}

// World - арена существ с дескрипторами, проверяемыми по поколению.
// Удаление отложено до Compact, чтобы не менять коллекцию во время обхода.
type World struct {
	terrain  terrain.Query
	settings Settings
	limits   physics.Limits

	species map[string]*Species
	slots   []slot
	free    []uint32

	metrics *Metrics
	tracer  trace.Tracer
	hooks   Hooks
	log     *logging.Logger

	mu sync.RWMutex
}

// NewWorld создаёт пустой мир над рельефом t
func NewWorld(t terrain.Query, settings Settings, opts ...Option) *World {
	settings = settings.withDefaults()
	w := &World{
		terrain:  t,
		settings: settings,
		limits: physics.Limits{
			MaxDelta:    settings.MaxDeltaTime,
			WorldFloorY: settings.WorldFloorY,
			RescueY:     settings.RescueY,
		},
		species: make(map[string]*Species),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	if w.tracer == nil {
		w.tracer = otel.Tracer(tracerName)
	}
	if w.log == nil {
		w.log = logging.GetWorldLogger()
	}
	return w
}

// Settings возвращает действующие параметры мира
func (w *World) Settings() Settings {
	return w.settings
}

// RegisterSpecies добавляет вид. Описание дополняется значениями по умолчанию и проверяется.
func (w *World) RegisterSpecies(s Species) error {
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.species[s.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSpecies, s.Name)
	}
	w.species[s.Name] = &s
	w.log.Info("Зарегистрирован вид %s (%s, %s)", s.Name, s.Mode(), s.Behavior)
	return nil
}

// Species возвращает зарегистрированный вид
func (w *World) Species(name string) (Species, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s, ok := w.species[name]
	if !ok {
		return Species{}, false
	}
	return *s, true
}

// Spawn создаёт существо вида name в точке (x, y, z)
func (w *World) Spawn(name string, x, y, z float64, opts ...SpawnOption) (Handle, error) {
	var cfg spawnConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.species[name]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownSpecies, name)
	}

	h := w.allocate()
	rng := ai.NewRand(w.settings.Seed, h.ID())
	yaw := NormalizeAngle(rng.Float64()*2*math.Pi - math.Pi)

	seed := cfg.seed
	if !cfg.hasSeed {
		seed = int64(h.ID())
	}

	e := &Entity{
		handle:    h,
		species:   s,
		loco:      physics.For(s.Mode()),
		body:      s.Body(),
		motor:     s.Motor(),
		behavior:  s.NewBehavior(),
		rng:       rng,
		Seed:      seed,
		Phys:      physics.State{Position: vec.Vec3Float{X: x, Y: y, Z: z}, Yaw: yaw},
		Brain:     ai.NewBrain(rng, yaw),
		Health:    s.MaxHealth,
		MaxHealth: s.MaxHealth,
	}
	w.slots[h.Index].entity = e

	w.log.Debug("Создано существо %s [%s] в (%.1f, %.1f, %.1f)", s.Name, h, x, y, z)
	return h, nil
}

// allocate занимает слот. Вызывается под блокировкой.
func (w *World) allocate() Handle {
	if n := len(w.free); n > 0 {
		idx := w.free[n-1]
		w.free = w.free[:n-1]
		return Handle{Index: idx, Generation: w.slots[idx].generation}
	}
	w.slots = append(w.slots, slot{})
	return Handle{Index: uint32(len(w.slots) - 1)}
}

// lookup находит запись по дескриптору. Вызывается под блокировкой.
func (w *World) lookup(h Handle) (*Entity, error) {
	if int(h.Index) >= len(w.slots) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, h)
	}
	sl := w.slots[h.Index]
	if sl.generation != h.Generation || sl.entity == nil || sl.entity.removed {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, h)
	}
	return sl.entity, nil
}

// Get возвращает запись сущности. Указатель действителен до следующего Compact
// и не должен использоваться параллельно со Step.
func (w *World) Get(h Handle) (*Entity, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lookup(h)
}

// Pose возвращает позу сущности для визуального слоя
func (w *World) Pose(h Handle) (Pose, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	e, err := w.lookup(h)
	if err != nil {
		return Pose{}, err
	}
	return e.pose(), nil
}

// Snapshot возвращает позы всех неудалённых сущностей в порядке слотов
func (w *World) Snapshot() []Pose {
	w.mu.RLock()
	defer w.mu.RUnlock()

	poses := make([]Pose, 0, len(w.slots))
	for _, sl := range w.slots {
		if sl.entity == nil || sl.entity.removed {
			continue
		}
		poses = append(poses, sl.entity.pose())
	}
	return poses
}

// Len возвращает число неудалённых сущностей
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.countLocked()
}

func (w *World) countLocked() int {
	n := 0
	for _, sl := range w.slots {
		if sl.entity != nil && !sl.entity.removed {
			n++
		}
	}
	return n
}

// TakeDamage наносит урон. На умирающей или мёртвой сущности ничего не делает.
func (w *World) TakeDamage(h Handle, amount float64) error {
	return w.withEntity(h, func(e *Entity) {
		if e.TakeDamage(amount) {
			w.log.Debug("Существо %s [%s] получило смертельный урон", e.species.Name, h)
		}
	})
}

// TakeDamageFrom наносит урон от источника source. Выжившее существо убегает от него.
func (w *World) TakeDamageFrom(h Handle, amount float64, source vec.Vec3Float) error {
	return w.withEntity(h, func(e *Entity) {
		if e.TakeDamageFrom(amount, source) {
			w.log.Debug("Существо %s [%s] получило смертельный урон", e.species.Name, h)
		}
	})
}

// ApplyKnockback отбрасывает существо в горизонтальном направлении direction с силой force
func (w *World) ApplyKnockback(h Handle, direction vec.Vec3Float, force float64) error {
	return w.withEntity(h, func(e *Entity) {
		e.ApplyKnockback(direction, force)
	})
}

// Levitate поднимает существо в воздух на duration секунд
func (w *World) Levitate(h Handle, duration float64) error {
	return w.withEntity(h, func(e *Entity) {
		e.Levitate(duration)
	})
}

func (w *World) withEntity(h Handle, fn func(e *Entity)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, err := w.lookup(h)
	if err != nil {
		return err
	}
	fn(e)
	return nil
}

// Remove помечает сущность на удаление. Слот освобождается в Compact.
func (w *World) Remove(h Handle) error {
	return w.withEntity(h, func(e *Entity) {
		e.removed = true
	})
}

// Compact освобождает слоты удалённых и мёртвых сущностей. Их дескрипторы становятся
// недействительными. Возвращает число освобождённых слотов.
func (w *World) Compact() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	freed := 0
	for i := range w.slots {
		e := w.slots[i].entity
		if e == nil || !(e.removed || e.Dead) {
			continue
		}
		w.slots[i].entity = nil
		w.slots[i].generation++
		w.free = append(w.free, uint32(i))
		freed++
	}
	if freed > 0 {
		w.metrics.liveEntities.Set(float64(w.countLocked()))
		w.log.Debug("Освобождено слотов: %d", freed)
	}
	return freed
}

// Step продвигает все сущности на dt секунд. Восприятие соседей читается из снимка,
// сделанного в начале тика.
func (w *World) Step(ctx context.Context, dt float64) StepStats {
	start := time.Now()
	_, span := w.tracer.Start(ctx, "creature.World.Step")
	defer span.End()

	var stats StepStats
	if dt <= 0 {
		return stats
	}
	if dt > w.settings.MaxDeltaTime {
		dt = w.settings.MaxDeltaTime
	}

	var (
		attacks []attackEvent
		deaths  []Handle
	)

	w.mu.Lock()
	others := w.perceptions()
	for i := range w.slots {
		e := w.slots[i].entity
		if e == nil || e.removed || e.Dead {
			continue
		}

		attacker := e.handle
		attack := func(target uint64) {
			attacks = append(attacks, attackEvent{attacker: attacker, target: HandleFromID(target)})
		}
		w.update(e, dt, others, attack, &stats)

		if e.Dead {
			deaths = append(deaths, e.handle)
		}
	}
	live := w.countLocked()
	w.mu.Unlock()

	stats.Attacks = len(attacks)
	stats.Deaths = len(deaths)
	w.metrics.attacks.Add(float64(len(attacks)))
	w.metrics.deaths.Add(float64(len(deaths)))
	w.metrics.liveEntities.Set(float64(live))

	for _, a := range attacks {
		if w.hooks.OnAttack != nil {
			w.hooks.OnAttack(a.attacker, a.target)
		}
	}
	for _, h := range deaths {
		if w.hooks.OnDeath != nil {
			w.hooks.OnDeath(h)
		}
	}

	span.SetAttributes(
		attribute.Float64("creature.dt", dt),
		attribute.Int("creature.updated", stats.Updated),
		attribute.Int("creature.attacks", stats.Attacks),
		attribute.Int("creature.deaths", stats.Deaths),
	)
	w.metrics.tickDuration.Observe(time.Since(start).Seconds())
	return stats
}

// perceptions строит неизменяемый снимок для восприятия. Вызывается под блокировкой.
func (w *World) perceptions() []ai.Perception {
	out := make([]ai.Perception, 0, len(w.slots))
	for _, sl := range w.slots {
		if sl.entity == nil || sl.entity.removed {
			continue
		}
		out = append(out, sl.entity.perception())
	}
	return out
}

// update выполняет тик одной сущности: ИИ, физика, поворот, смерть, анимация
func (w *World) update(e *Entity, dt float64, others []ai.Perception, attack func(uint64), stats *StepStats) {
	stats.Updated++

	if e.Alive() {
		c := &ai.Context{
			SelfID:     e.handle.ID(),
			Position:   e.Phys.Position,
			Yaw:        e.Phys.Yaw,
			Speed:      e.motor.Speed,
			Width:      e.body.Width,
			Dt:         dt,
			Terrain:    w.terrain,
			Rand:       e.rng,
			Others:     others,
			Plan:       w.plan,
			PathBudget: w.settings.PathBudget,
			Attack:     attack,
			Climbing:   e.Phys.Climb.Active,
		}
		e.Brain.Update(c, e.behavior)
	}

	res := physics.Advance(e.loco, w.terrain, &e.Phys, e.body, e.motor, e.intent(), dt, w.limits)
	if res.Blocked && e.Brain.State == ai.StateWalk {
		e.Brain.Abandon()
	}
	if res.Unstuck {
		stats.Unstuck++
		w.metrics.unstuck.Inc()
		w.log.Warn("Существо %s [%s] вытолкнуто из блока в (%.2f, %.2f, %.2f)",
			e.species.Name, e.handle, e.Phys.Position.X, e.Phys.Position.Y, e.Phys.Position.Z)
	}
	if res.Rescued {
		stats.Rescued++
		w.metrics.rescues.Inc()
		w.log.Warn("Существо %s [%s] выпало из мира, перенесено на высоту %.0f",
			e.species.Name, e.handle, w.limits.RescueY)
	}

	if e.Alive() {
		e.Phys.Yaw = SmoothYaw(e.Phys.Yaw, e.Brain.TargetYaw, dt)
	}

	if e.advanceDeath(dt) {
		w.log.Info("Существо %s [%s] погибло", e.species.Name, e.handle)
	}

	if e.FlashTimer > 0 {
		e.FlashTimer = math.Max(0, e.FlashTimer-dt)
	}
	if e.Alive() && e.Brain.Moving {
		e.AnimTime += dt * e.species.LegSwingSpeed
	}
}

// plan ищет маршрут для автомата и учитывает запрос в метриках
func (w *World) plan(start, goal vec.Vec3Float, budget int) ([]vec.Vec3, bool) {
	res := pathfind.Search(w.terrain, start.Floor(), goal.Floor(), budget)
	w.metrics.observePath(res)
	return res.Path, res.Found
}
