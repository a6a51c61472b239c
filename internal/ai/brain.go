// Package ai содержит конечный автомат поведения существ: простой, блуждание по маршруту,
// погоня и бегство.
package ai

import (
	"fmt"
	"math"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

// State - состояние автомата
type State uint8

const (
	StateIdle State = iota
	StateWalk
	StateChase
	StateFlee
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWalk:
		return "walk"
	case StateChase:
		return "chase"
	case StateFlee:
		return "flee"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Параметры блуждания
const (
	WanderChance   = 0.7  // Вероятность выбрать новую цель по истечении простоя
	WanderRadius   = 8.0  // Горизонтальный разброс цели
	WanderJitterY  = 4.0  // Вертикальный разброс цели
	MaxWalkTime    = 10.0 // Предел времени на один маршрут
	PlanRetryDelay = 1.0  // Пауза после неудачного планирования
	LostTargetIdle = 2.0
	FleeRefresh    = 1.0 // Сколько длится бегство после последнего замеченного врага
	minArrival     = 0.1
)

// Параметры выхода из застревания
const (
	StuckInterval  = 1.0 // Как часто сравнивается пройденный путь
	StuckThreshold = 0.1 // Смещение за интервал, ниже которого существо считается застрявшим
	DetourTime     = 1.0 // Сколько погоня или бегство держат обходное направление
)

// PlanFunc ищет маршрут по клеткам от start до goal с бюджетом раскрытий
type PlanFunc func(start, goal vec.Vec3Float, budget int) ([]vec.Vec3, bool)

// Perception - неизменяемый снимок другого существа на текущем тике
type Perception struct {
	ID       uint64
	Species  string
	Position vec.Vec3Float
	Hostile  bool
	Alive    bool
}

// Context - всё, что нужно автомату на одном тике
type Context struct {
	SelfID     uint64
	Position   vec.Vec3Float
	Yaw        float64
	Speed      float64
	Width      float64
	Dt         float64
	Terrain    terrain.Query
	Rand       Rand
	Others     []Perception
	Plan       PlanFunc
	PathBudget int
	Attack     func(target uint64) // Может быть nil
	Climbing   bool                // Идёт скриптовый подъём
}

// Behavior - видовое переопределение поведения. Возвращает true, если решение на тик принято.
type Behavior interface {
	Override(b *Brain, c *Context) bool
}

// Brain - состояние автомата одной сущности
type Brain struct {
	State     State
	Timer     float64
	Path      []vec.Vec3
	PathIndex int

	Moving    bool
	MoveDir   vec.Vec3Float
	TargetYaw float64

	FleeFrom       vec.Vec3Float
	ChaseTarget    uint64
	AttackCooldown float64

	StuckTimer   float64
	LastPosition vec.Vec3Float
	Detour       vec.Vec3Float
	DetourTimer  float64
}

// NewBrain создаёт автомат в простое со случайной начальной паузой 1-4 секунды
func NewBrain(r Rand, yaw float64) Brain {
	return Brain{
		State:     StateIdle,
		Timer:     RandomInRange(r, 1, 4),
		TargetYaw: yaw,
	}
}

// Update продвигает автомат на один тик: таймер, видовое поведение, бегство, блуждание.
// В конце тика проверяется застревание.
func (b *Brain) Update(c *Context, beh Behavior) {
	b.Timer -= c.Dt
	if b.AttackCooldown > 0 {
		b.AttackCooldown = math.Max(0, b.AttackCooldown-c.Dt)
	}
	if b.DetourTimer > 0 {
		b.DetourTimer = math.Max(0, b.DetourTimer-c.Dt)
	}

	b.decide(c, beh)
	b.checkStuck(c)
}

func (b *Brain) decide(c *Context, beh Behavior) {
	if beh != nil && beh.Override(b, c) {
		return
	}

	if b.State == StateFlee {
		b.continueFlee(c)
		return
	}

	b.wander(c)
}

// checkStuck раз в StuckInterval сравнивает позицию с запомненной. Если существо шло,
// но почти не сдвинулось, оно выбирает свободное направление, а без такового уходит в простой.
// Во время подъёма счётчик не идёт.
func (b *Brain) checkStuck(c *Context) {
	if !b.Moving || c.Climbing {
		b.StuckTimer = 0
		return
	}

	if b.StuckTimer == 0 {
		b.LastPosition = c.Position
	}
	b.StuckTimer += c.Dt
	if b.StuckTimer < StuckInterval {
		return
	}
	b.StuckTimer = 0
	if c.Position.Sub(b.LastPosition).HorizontalLength() >= StuckThreshold {
		return
	}

	if b.State == StateWalk {
		// Маршрут больше не ведёт, новый будет спланирован из простоя
		b.toIdle(RandomInRange(c.Rand, 1, 3))
		return
	}

	var (
		dir vec.Vec3Float
		ok  bool
	)
	if c.Terrain != nil {
		dir, ok = BestDirection(c.Terrain, c.Position, vec.Vec3Float{}, c.Width, c.Rand)
	}
	if !ok {
		b.toIdle(RandomInRange(c.Rand, 1, 3))
		return
	}
	b.Detour = dir
	b.DetourTimer = DetourTime
	b.face(dir)
}

// Stop сбрасывает намерение двигаться
func (b *Brain) Stop() {
	b.Moving = false
	b.MoveDir = vec.Vec3Float{}
}

// Abandon прерывает текущий маршрут на следующем тике
func (b *Brain) Abandon() {
	if b.State == StateWalk {
		b.Timer = 0
	}
}

// StartFlee переводит автомат в бегство от точки from на duration секунд
func (b *Brain) StartFlee(from vec.Vec3Float, duration float64) {
	b.State = StateFlee
	b.Timer = duration
	b.FleeFrom = from
	b.Path = nil
	b.PathIndex = 0
}

func (b *Brain) toIdle(timer float64) {
	b.State = StateIdle
	b.Timer = timer
	b.Path = nil
	b.PathIndex = 0
	b.DetourTimer = 0
	b.Stop()
}

// face задаёт направление движения и целевой поворот
func (b *Brain) face(dir vec.Vec3Float) {
	b.TargetYaw = dir.Yaw()
	b.MoveDir = vec.FromYaw(b.TargetYaw)
	b.Moving = true
}

func (b *Brain) wander(c *Context) {
	switch b.State {
	case StateIdle:
		b.Stop()
		if b.Timer > 0 {
			return
		}
		if c.Rand.Float64() < WanderChance {
			b.planWander(c)
		} else {
			b.Timer = RandomInRange(c.Rand, 1, 3)
		}
	case StateWalk:
		b.followPath(c)
	default:
		// Погоня без цели или бегство, прерванное извне
		b.toIdle(RandomInRange(c.Rand, 1, 3))
	}
}

func (b *Brain) planWander(c *Context) {
	pos := c.Position
	goal := vec.Vec3Float{
		X: math.Floor(pos.X + (c.Rand.Float64()-0.5)*WanderRadius*2),
		Z: math.Floor(pos.Z + (c.Rand.Float64()-0.5)*WanderRadius*2),
		Y: math.Floor(pos.Y) + math.Floor((c.Rand.Float64()-0.5)*WanderJitterY),
	}

	var (
		path []vec.Vec3
		ok   bool
	)
	if c.Plan != nil {
		path, ok = c.Plan(pos, goal, c.PathBudget)
	}
	if !ok || len(path) == 0 {
		b.Timer = PlanRetryDelay
		return
	}

	b.State = StateWalk
	b.Path = path
	b.PathIndex = 0
	b.Timer = MaxWalkTime
}

func (b *Brain) followPath(c *Context) {
	if b.PathIndex >= len(b.Path) {
		b.toIdle(RandomInRange(c.Rand, 2, 5))
		return
	}
	if b.Timer <= 0 {
		b.toIdle(RandomInRange(c.Rand, 1, 3))
		return
	}

	arrival := math.Max(minArrival, c.Speed*c.Dt/2)
	for {
		target := b.Path[b.PathIndex].Center()
		delta := target.Sub(c.Position).Horizontal()
		if delta.HorizontalLength() >= arrival {
			b.face(delta)
			return
		}

		b.PathIndex++
		if b.PathIndex >= len(b.Path) {
			b.toIdle(RandomInRange(c.Rand, 1, 3))
			return
		}
	}
}

func (b *Brain) continueFlee(c *Context) {
	if b.Timer <= 0 {
		b.toIdle(RandomInRange(c.Rand, 1, 3))
		return
	}

	away := c.Position.Sub(b.FleeFrom).Horizontal().Normalized()
	if away == (vec.Vec3Float{}) {
		away = vec.FromYaw(c.Rand.Float64() * 2 * math.Pi)
	}
	b.face(b.steer(c, away))
}

// steer обходит препятствие, если прямое направление заблокировано.
// Пока действует обход после застревания, возвращается его направление.
func (b *Brain) steer(c *Context, dir vec.Vec3Float) vec.Vec3Float {
	if b.DetourTimer > 0 {
		return b.Detour
	}
	if c.Terrain == nil || !ObstacleAhead(c.Terrain, c.Position, dir, c.Width) {
		return dir
	}
	if alt, ok := BestDirection(c.Terrain, c.Position, dir, c.Width, c.Rand); ok {
		return alt
	}
	return dir
}
