package ai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

// seqRand возвращает заранее заданные значения по кругу
type seqRand struct {
	values []float64
	i      int
}

func (r *seqRand) Float64() float64 {
	v := r.values[r.i%len(r.values)]
	r.i++
	return v
}

func flatGround() *terrain.Grid {
	g := terrain.NewGrid()
	g.Fill(vec.Vec3{X: -20, Y: 4, Z: -20}, vec.Vec3{X: 20, Y: 4, Z: 20}, true)
	return g
}

func newContext(r Rand, plan PlanFunc) *Context {
	return &Context{
		SelfID:     1,
		Position:   vec.Vec3Float{X: 0.5, Y: 5, Z: 0.5},
		Speed:      2,
		Width:      0.8,
		Dt:         0.05,
		Terrain:    flatGround(),
		Rand:       r,
		Plan:       plan,
		PathBudget: 200,
	}
}

func straightPath(n int) []vec.Vec3 {
	path := make([]vec.Vec3, n)
	for i := range path {
		path[i] = vec.Vec3{X: i, Y: 5, Z: 0}
	}
	return path
}

func TestNewBrain_InitialTimer(t *testing.T) {
	b := NewBrain(&seqRand{values: []float64{0.5}}, 1.2)
	assert.Equal(t, StateIdle, b.State)
	assert.Equal(t, 2.5, b.Timer, "Начальная пауза r*3+1")
	assert.Equal(t, 1.2, b.TargetYaw)
}

func TestBrain_IdleStartsWalkOnPlan(t *testing.T) {
	var gotBudget int
	var gotGoal vec.Vec3Float
	plan := func(start, goal vec.Vec3Float, budget int) ([]vec.Vec3, bool) {
		gotBudget = budget
		gotGoal = goal
		return straightPath(4), true
	}
	// 0.5 - решение идти, затем три координаты цели
	c := newContext(&seqRand{values: []float64{0.5, 1.0, 0.0, 0.5}}, plan)
	b := Brain{State: StateIdle, Timer: 0.01}

	b.Update(c, Wander{})

	require.Equal(t, StateWalk, b.State)
	assert.Equal(t, MaxWalkTime, b.Timer)
	assert.Equal(t, 0, b.PathIndex)
	assert.Equal(t, 200, gotBudget)
	assert.Equal(t, vec.Vec3Float{X: 8, Y: 5, Z: -8}, gotGoal, "Цель в пределах ±8 по горизонтали")
}

func TestBrain_IdlePlanFailure(t *testing.T) {
	plan := func(start, goal vec.Vec3Float, budget int) ([]vec.Vec3, bool) { return nil, false }
	c := newContext(&seqRand{values: []float64{0.1}}, plan)
	b := Brain{State: StateIdle}

	b.Update(c, nil)

	assert.Equal(t, StateIdle, b.State)
	assert.Equal(t, PlanRetryDelay, b.Timer, "Повтор через секунду")
}

func TestBrain_IdleReIdle(t *testing.T) {
	called := false
	plan := func(start, goal vec.Vec3Float, budget int) ([]vec.Vec3, bool) {
		called = true
		return nil, false
	}
	c := newContext(&seqRand{values: []float64{0.9, 0.5}}, plan)
	b := Brain{State: StateIdle}

	b.Update(c, nil)

	assert.False(t, called)
	assert.Equal(t, StateIdle, b.State)
	assert.Equal(t, 2.0, b.Timer, "Пауза r*2+1")
}

func TestBrain_IdleWaitsForTimer(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.1}}, nil)
	b := Brain{State: StateIdle, Timer: 1, Moving: true}

	b.Update(c, nil)

	assert.Equal(t, StateIdle, b.State)
	assert.False(t, b.Moving)
	assert.InDelta(t, 0.95, b.Timer, 1e-9)
}

func TestBrain_FollowsPath(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	b := Brain{State: StateWalk, Timer: MaxWalkTime, Path: straightPath(3)}

	// Стоим в центре первой точки: она сразу засчитывается, идём ко второй
	b.Update(c, nil)
	assert.Equal(t, 1, b.PathIndex)
	assert.True(t, b.Moving)
	assert.InDelta(t, math.Pi/2, b.TargetYaw, 1e-9, "Движение вдоль +X")
	assert.InDelta(t, 1.0, b.MoveDir.X, 1e-9)

	prev := b.PathIndex
	for i := 0; i < 100 && b.State == StateWalk; i++ {
		if b.Moving {
			c.Position = c.Position.Add(b.MoveDir.Mul(c.Speed * c.Dt))
		}
		b.Update(c, nil)
		assert.GreaterOrEqual(t, b.PathIndex, prev, "Индекс маршрута не убывает")
		prev = b.PathIndex
	}

	assert.Equal(t, StateIdle, b.State)
	assert.InDelta(t, 2.5, c.Position.X, 0.1, "Дошли до центра последней клетки")
	assert.Equal(t, 2.0, b.Timer)
}

func TestBrain_WalkAbandonedWhenTimerExpires(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	b := Brain{State: StateWalk, Timer: MaxWalkTime, Path: straightPath(5), PathIndex: 2}

	b.Abandon()
	b.Update(c, nil)

	assert.Equal(t, StateIdle, b.State)
	assert.Nil(t, b.Path)
	assert.False(t, b.Moving)
}

func TestBrain_WalkExhaustedPath(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.0}}, nil)
	b := Brain{State: StateWalk, Timer: MaxWalkTime, Path: straightPath(2), PathIndex: 2}

	b.Update(c, nil)

	assert.Equal(t, StateIdle, b.State)
	assert.Equal(t, 2.0, b.Timer, "Пауза r*3+2")
}

func TestBrain_FleeOnDamage(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	b := NewBrain(c.Rand, 0)

	b.StartFlee(vec.Vec3Float{X: -2, Y: 5, Z: 0.5}, 5)
	b.Update(c, Wander{})

	assert.Equal(t, StateFlee, b.State)
	assert.True(t, b.Moving)
	assert.Greater(t, b.MoveDir.X, 0.9, "Бежим прочь от источника урона")

	for i := 0; i < 101; i++ {
		b.Update(c, Wander{})
	}
	assert.Equal(t, StateIdle, b.State, "Бегство заканчивается через 5 секунд")
}

// pitGround - яма глубиной два блока в клетке (0, 0) посреди возвышенности
func pitGround() *terrain.Grid {
	g := flatGround()
	g.Fill(vec.Vec3{X: -3, Y: 5, Z: -3}, vec.Vec3{X: 3, Y: 6, Z: 3}, true)
	g.Set(0, 5, 0, false)
	g.Set(0, 6, 0, false)
	return g
}

func TestBrain_StuckFleeTakesDetour(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	b := Brain{}
	b.StartFlee(vec.Vec3Float{X: -2, Y: 5, Z: 0.5}, 5)

	// Позиция не меняется: существо упёрлось в невидимую для зондов преграду
	for i := 0; i < 19; i++ {
		b.Update(c, Wander{})
	}
	assert.Equal(t, 0.0, b.DetourTimer, "До истечения секунды застревание не проверяется")
	away := b.MoveDir

	for i := 0; i < 2; i++ {
		b.Update(c, Wander{})
	}
	require.Greater(t, b.DetourTimer, 0.0, "Через секунду без движения выбран обход")
	assert.Equal(t, StateFlee, b.State)
	assert.True(t, b.Moving)
	assert.NotEqual(t, away, b.Detour)
	assert.InDelta(t, b.Detour.X, b.MoveDir.X, 1e-9)
	assert.InDelta(t, b.Detour.Z, b.MoveDir.Z, 1e-9)

	// Бегство заново выбирает направление каждый тик, но обход держится
	b.Update(c, Wander{})
	assert.InDelta(t, b.Detour.X, b.MoveDir.X, 1e-9)
	assert.InDelta(t, b.Detour.Z, b.MoveDir.Z, 1e-9)
}

func TestBrain_StuckChaseTakesDetour(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	c.Others = []Perception{
		{ID: 3, Species: "rabbit", Position: vec.Vec3Float{X: 6.5, Y: 5, Z: 0.5}, Alive: true},
	}
	p := Predator{DetectionRadius: 8, Prey: []string{"rabbit"}}
	b := Brain{State: StateIdle, Timer: 3}

	for i := 0; i < 21; i++ {
		b.Update(c, p)
	}
	require.Greater(t, b.DetourTimer, 0.0)
	assert.Equal(t, StateChase, b.State)
	assert.Less(t, b.Detour.X, 0.9, "Обход не совпадает с прямым курсом на добычу")

	b.Update(c, p)
	assert.InDelta(t, b.Detour.X, b.MoveDir.X, 1e-9, "Погоня идёт в обход, пока он действует")
	assert.InDelta(t, b.Detour.Z, b.MoveDir.Z, 1e-9)

	for i := 0; i < 40 && b.DetourTimer > 0; i++ {
		c.Position = c.Position.Add(b.MoveDir.Mul(c.Speed * c.Dt))
		b.Update(c, p)
	}
	assert.Equal(t, 0.0, b.DetourTimer)
	b.Update(c, p)
	target := c.Others[0].Position.Sub(c.Position).Horizontal().Normalized()
	assert.InDelta(t, target.X, b.MoveDir.X, 1e-9, "После обхода снова к добыче")
	assert.InDelta(t, target.Z, b.MoveDir.Z, 1e-9)
}

func TestBrain_StuckInPitGoesIdle(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	c.Terrain = pitGround()
	c.Width = 0.4
	b := Brain{}
	b.StartFlee(vec.Vec3Float{X: -2, Y: 5, Z: 0.5}, 5)

	for i := 0; i < 21 && b.State == StateFlee; i++ {
		b.Update(c, Wander{})
	}

	assert.Equal(t, StateIdle, b.State, "Из ямы нет свободного направления")
	assert.False(t, b.Moving)
	assert.Equal(t, 2.0, b.Timer, "Пауза r*2+1")
	assert.Equal(t, 0.0, b.DetourTimer)
}

func TestBrain_StuckWalkDropsPath(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	b := Brain{State: StateWalk, Timer: MaxWalkTime, Path: straightPath(6), PathIndex: 3}

	for i := 0; i < 21 && b.State == StateWalk; i++ {
		b.Update(c, nil)
	}

	assert.Equal(t, StateIdle, b.State)
	assert.Nil(t, b.Path)
	assert.Equal(t, 0.0, b.DetourTimer, "Маршрут не обходится, а планируется заново")
}

func TestBrain_StuckCheckSkipsMovementAndClimb(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	b := Brain{}
	b.StartFlee(vec.Vec3Float{X: -2, Y: 5, Z: 0.5}, 5)

	for i := 0; i < 40; i++ {
		c.Position = c.Position.Add(b.MoveDir.Mul(c.Speed * c.Dt))
		b.Update(c, Wander{})
	}
	assert.Equal(t, 0.0, b.DetourTimer, "Идущее существо не застряло")

	c.Climbing = true
	for i := 0; i < 40; i++ {
		b.Update(c, Wander{})
	}
	assert.Equal(t, 0.0, b.DetourTimer, "Во время подъёма застревание не считается")
	assert.Equal(t, StateFlee, b.State)
}

func TestPrey_FleesFromHostile(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	c.Others = []Perception{
		{ID: 1, Position: c.Position, Alive: true},
		{ID: 7, Species: "wolf", Position: vec.Vec3Float{X: 0.5, Y: 5, Z: 3.5}, Hostile: true, Alive: true},
	}
	b := Brain{State: StateIdle, Timer: 3}

	b.Update(c, Prey{DetectionRadius: 6})

	assert.Equal(t, StateFlee, b.State)
	assert.Equal(t, FleeRefresh, b.Timer)
	assert.Less(t, b.MoveDir.Z, -0.9, "Бегство в противоположную от волка сторону")
}

func TestPrey_IgnoresFarOrDeadThreats(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	c.Others = []Perception{
		{ID: 7, Position: vec.Vec3Float{X: 20, Y: 5}, Hostile: true, Alive: true},
		{ID: 8, Position: vec.Vec3Float{X: 1, Y: 5}, Hostile: true, Alive: false},
	}
	b := Brain{State: StateIdle, Timer: 3}

	b.Update(c, Prey{DetectionRadius: 6})

	assert.Equal(t, StateIdle, b.State)
}

func TestPredator_ChasesAndAttacks(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	var attacks []uint64
	c.Attack = func(target uint64) { attacks = append(attacks, target) }
	c.Others = []Perception{
		{ID: 3, Species: "rabbit", Position: vec.Vec3Float{X: 5.5, Y: 5, Z: 0.5}, Alive: true},
		{ID: 4, Species: "wolf", Position: vec.Vec3Float{X: 1.5, Y: 5, Z: 0.5}, Hostile: true, Alive: true},
	}
	p := Predator{DetectionRadius: 8, AttackRange: 1.5, Prey: []string{"rabbit"}}
	b := Brain{State: StateIdle, Timer: 3}

	b.Update(c, p)
	assert.Equal(t, StateChase, b.State)
	assert.Equal(t, uint64(3), b.ChaseTarget, "Преследуется добыча, а не сородич")
	assert.True(t, b.Moving)
	assert.Empty(t, attacks)

	// Добыча рядом: остановка и атака с перезарядкой
	c.Others[0].Position = vec.Vec3Float{X: 1.5, Y: 5, Z: 0.5}
	b.Update(c, p)
	assert.False(t, b.Moving)
	assert.Equal(t, []uint64{3}, attacks)

	b.Update(c, p)
	assert.Len(t, attacks, 1, "Перезарядка атаки")

	for i := 0; i < 20; i++ {
		b.Update(c, p)
	}
	assert.Len(t, attacks, 2, "После секунды атака повторяется")
}

func TestPredator_LostTarget(t *testing.T) {
	c := newContext(&seqRand{values: []float64{0.5}}, nil)
	b := Brain{State: StateChase, ChaseTarget: 3, Timer: 0.5}

	b.Update(c, Predator{})

	assert.Equal(t, StateIdle, b.State)
	assert.Equal(t, LostTargetIdle, b.Timer)
}

func TestNewRand_Reproducible(t *testing.T) {
	a := NewRand(42, 3)
	b := NewRand(42, 3)
	other := NewRand(42, 4)

	av := a.Float64()
	assert.Equal(t, av, b.Float64())
	assert.NotEqual(t, av, other.Float64())
}
