package creature

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-creatures/internal/ai"
	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

const tickDt = 1.0 / 20.0

// flatWorld создаёт мир с полом на уровне y=4 (существа стоят на y=5)
func flatWorld(t *testing.T, opts ...Option) *World {
	t.Helper()

	g := terrain.NewGrid()
	g.Fill(vec.Vec3{X: -30, Y: 4, Z: -30}, vec.Vec3{X: 30, Y: 4, Z: 30}, true)

	w := NewWorld(g, Settings{Seed: 7}, opts...)
	for _, s := range testSpecies() {
		require.NoError(t, w.RegisterSpecies(s))
	}
	return w
}

func testSpecies() []Species {
	return []Species{
		{Name: "sheep", Width: 0.8, Height: 1.2, Depth: 1.2, Speed: 2, MaxHealth: 10},
		{Name: "rabbit", Width: 0.4, Height: 0.6, Depth: 0.5, Hops: true, Speed: 3,
			MaxHealth: 3, Behavior: BehaviorPrey, DetectionRadius: 6},
		{Name: "wolf", Width: 0.6, Height: 0.9, Depth: 1.2, Speed: 3.5, MaxHealth: 20,
			Behavior: BehaviorPredator, Hostile: true, AttackRange: 1.5, Targets: []string{"rabbit"}},
		{Name: "villager", Width: 0.6, Height: 1.8, Depth: 0.4, Legs: 2, Speed: 1.5},
	}
}

func stepN(w *World, n int, dt float64) StepStats {
	var total StepStats
	for i := 0; i < n; i++ {
		s := w.Step(context.Background(), dt)
		total.Updated += s.Updated
		total.Attacks += s.Attacks
		total.Deaths += s.Deaths
		total.Unstuck += s.Unstuck
		total.Rescued += s.Rescued
	}
	return total
}

func TestWorld_RegisterSpecies(t *testing.T) {
	w := flatWorld(t)

	err := w.RegisterSpecies(Species{Name: "sheep", Width: 1, Height: 1, Depth: 1})
	assert.ErrorIs(t, err, ErrDuplicateSpecies)

	err = w.RegisterSpecies(Species{Name: "ghost", Width: 0, Height: 1, Depth: 1})
	assert.ErrorIs(t, err, ErrInvalidSpecies)

	s, ok := w.Species("rabbit")
	require.True(t, ok)
	assert.Equal(t, "hopper", s.Locomotion, "Устаревший флаг hops переводится в прыгуна")
	assert.Equal(t, 4, s.Legs)
}

func TestSpecies_Validate(t *testing.T) {
	base := Species{Name: "cow", Width: 0.9, Height: 1.4, Depth: 1.4}

	tests := []struct {
		name   string
		modify func(s *Species)
		valid  bool
	}{
		{"корректный вид", func(s *Species) {}, true},
		{"пустое имя", func(s *Species) { s.Name = " " }, false},
		{"отрицательная скорость", func(s *Species) { s.Speed = -1 }, false},
		{"неизвестное передвижение", func(s *Species) { s.Locomotion = "swim" }, false},
		{"флаг hops против ходока", func(s *Species) {
			s.Hops = true
			s.Locomotion = "walker"
		}, false},
		{"три ноги", func(s *Species) { s.Legs = 3 }, false},
		{"враждебная добыча", func(s *Species) {
			s.Behavior = BehaviorPrey
			s.Hostile = true
		}, false},
		{"неизвестное поведение", func(s *Species) { s.Behavior = "dance" }, false},
		{"двуногий хищник", func(s *Species) {
			s.Legs = 2
			s.Behavior = BehaviorPredator
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.modify(&s)
			err := s.WithDefaults().Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSpecies)
			}
		})
	}
}

func TestWorld_SpawnUnknownSpecies(t *testing.T) {
	w := flatWorld(t)
	_, err := w.Spawn("dragon", 0.5, 5, 0.5)
	assert.ErrorIs(t, err, ErrUnknownSpecies)
	assert.Equal(t, 0, w.Len())
}

func TestWorld_SpawnSeedIsVisualOnly(t *testing.T) {
	a := flatWorld(t)
	b := flatWorld(t)

	ha, err := a.Spawn("sheep", 0.5, 5, 0.5, WithSeed(111))
	require.NoError(t, err)
	hb, err := b.Spawn("sheep", 0.5, 5, 0.5, WithSeed(999))
	require.NoError(t, err)

	stepN(a, 200, tickDt)
	stepN(b, 200, tickDt)

	pa, err := a.Pose(ha)
	require.NoError(t, err)
	pb, err := b.Pose(hb)
	require.NoError(t, err)

	assert.Equal(t, int64(111), pa.Seed)
	assert.Equal(t, int64(999), pb.Seed)
	assert.Equal(t, pa.Position, pb.Position, "Сид спавна не влияет на ИИ и физику")
	assert.Equal(t, pa.Yaw, pb.Yaw)
}

func TestWorld_Deterministic(t *testing.T) {
	run := func() []Pose {
		w := flatWorld(t)
		for i, name := range []string{"sheep", "rabbit", "wolf", "villager", "sheep"} {
			_, err := w.Spawn(name, float64(i*3)+0.5, 5, 0.5)
			require.NoError(t, err)
		}
		stepN(w, 300, tickDt)
		return w.Snapshot()
	}

	assert.Equal(t, run(), run(), "Один сид мира даёт одну и ту же симуляцию")
}

func TestWorld_InvariantsHoldDuringSimulation(t *testing.T) {
	w := flatWorld(t)
	var handles []Handle
	for i, name := range []string{"sheep", "rabbit", "wolf", "villager", "sheep", "rabbit"} {
		h, err := w.Spawn(name, float64(i*2)-5.5, 5, float64(i)-2.5)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	type walkTrack struct {
		first *vec.Vec3
		index int
	}
	tracks := make(map[Handle]walkTrack)

	for tick := 0; tick < 600; tick++ {
		w.Step(context.Background(), tickDt)

		for _, h := range handles {
			e, err := w.Get(h)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, e.Health, 0.0)
			assert.LessOrEqual(t, e.Health, e.MaxHealth)
			if e.Phys.OnGround {
				assert.Equal(t, 0.0, e.Phys.Velocity.Y, "На земле вертикальная скорость нулевая")
			}
			assert.Greater(t, e.Phys.Position.Y, -50.0)
			assert.True(t, e.Phys.Yaw > -math.Pi && e.Phys.Yaw <= math.Pi, "Угол нормализован")

			if e.Brain.State == ai.StateWalk && len(e.Brain.Path) > 0 {
				prev, ok := tracks[h]
				if ok && prev.first == &e.Brain.Path[0] {
					assert.GreaterOrEqual(t, e.Brain.PathIndex, prev.index, "Индекс маршрута не убывает")
				}
				tracks[h] = walkTrack{first: &e.Brain.Path[0], index: e.Brain.PathIndex}
			} else {
				delete(tracks, h)
			}
		}
	}
}

func TestWorld_KnockbackDecay(t *testing.T) {
	w := flatWorld(t)
	h, err := w.Spawn("sheep", 0.5, 5, 0.5)
	require.NoError(t, err)
	stepN(w, 2, tickDt) // Приземлиться

	require.NoError(t, w.ApplyKnockback(h, vec.Vec3Float{X: 3}, 5))

	e, err := w.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 5.0, e.Phys.Knockback.Velocity.X, "Направление нормализуется")
	assert.False(t, e.Phys.OnGround)

	stepN(w, 12, 1.0/60.0)
	assert.InEpsilon(t, 1.84, e.Phys.Knockback.Speed(), 0.1, "Скорость через 0.2 с около 5*exp(-1)")
	assert.Greater(t, e.Phys.Position.X, 0.5)

	stepN(w, 40, 1.0/60.0)
	assert.Equal(t, 0.0, e.Phys.Knockback.Speed(), "Отбрасывание полностью гаснет")
}

func TestSmoothYaw_ThroughPi(t *testing.T) {
	yaw := 3.0
	target := -3.0

	yaw = SmoothYaw(yaw, target, 0.05)
	assert.InDelta(t, 3.2-2*math.Pi, yaw, 1e-9, "Поворот идёт по короткой дуге через π")

	yaw = SmoothYaw(yaw, target, 0.05)
	assert.InDelta(t, target, yaw, 1e-9)
}

func TestSmoothYaw(t *testing.T) {
	tests := []struct {
		name            string
		current, target float64
		dt, expected    float64
	}{
		{"маленькая разница сразу", 1.0, 1.005, 0.05, 1.005},
		{"ограничение скорости", 0, 1, 0.05, 0.2},
		{"поворот влево", 0, -1, 0.05, -0.2},
		{"достижение цели", 0, 0.15, 0.05, 0.15},
		{"нормализация цели", 0, 2*math.Pi + 0.1, 0.05, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SmoothYaw(tt.current, tt.target, tt.dt), 1e-9)
		})
	}
}

func TestNormalizeAngle(t *testing.T) {
	assert.InDelta(t, math.Pi, NormalizeAngle(math.Pi), 1e-9)
	assert.InDelta(t, math.Pi, NormalizeAngle(-math.Pi), 1e-9, "Диапазон (-π, π]")
	assert.InDelta(t, 0.5, NormalizeAngle(0.5+4*math.Pi), 1e-9)
	assert.InDelta(t, -0.5, NormalizeAngle(-0.5-2*math.Pi), 1e-9)
}

func TestWorld_DeathSequence(t *testing.T) {
	var died []Handle
	w := flatWorld(t, WithHooks(Hooks{OnDeath: func(h Handle) { died = append(died, h) }}))
	h, err := w.Spawn("rabbit", 0.5, 5, 0.5)
	require.NoError(t, err)
	stepN(w, 2, tickDt)

	require.NoError(t, w.TakeDamage(h, 0))
	require.NoError(t, w.TakeDamage(h, -2))
	e, err := w.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 3.0, e.Health, "Неположительный урон игнорируется")

	require.NoError(t, w.TakeDamage(h, 5))
	assert.Equal(t, 0.0, e.Health, "Здоровье не уходит ниже нуля")
	assert.True(t, e.Dying)
	assert.False(t, e.Dead)
	assert.False(t, e.Brain.Moving)

	pose, err := w.Pose(h)
	require.NoError(t, err)
	assert.True(t, pose.Flashing)

	prevTilt := 0.0
	for i := 0; i < 19; i++ {
		w.Step(context.Background(), 0.1)
		assert.GreaterOrEqual(t, e.DeathTilt, prevTilt, "Наклон не убывает")
		assert.LessOrEqual(t, e.DeathTilt, DeathTiltMax)
		prevTilt = e.DeathTilt
	}
	assert.False(t, e.Dead, "Через 1.9 с ещё умирает")
	assert.Equal(t, DeathTiltMax, e.DeathTilt)
	assert.False(t, e.FlashTimer > 0, "Вспышка длится секунду")

	deathTimer := e.DeathTimer
	require.Greater(t, deathTimer, 0.0)
	require.NoError(t, w.TakeDamage(h, 1))
	require.NoError(t, w.TakeDamageFrom(h, 1, vec.Vec3Float{X: -3, Y: 5}))
	assert.Equal(t, deathTimer, e.DeathTimer, "Урон по умирающему не перезапускает таймер смерти")
	assert.Equal(t, 0.0, e.Health)
	assert.False(t, e.FlashTimer > 0, "Урон по умирающему не вызывает вспышку")
	assert.NotEqual(t, ai.StateFlee, e.Brain.State)

	stats := stepN(w, 3, 0.1)
	assert.True(t, e.Dead)
	assert.Equal(t, 1, stats.Deaths)
	assert.Equal(t, []Handle{h}, died, "Хук смерти вызывается один раз")

	require.NoError(t, w.TakeDamage(h, 1), "Урон по мёртвому - не ошибка")
	require.NoError(t, w.ApplyKnockback(h, vec.Vec3Float{X: 1}, 5))
	assert.Equal(t, 0.0, e.Phys.Knockback.Speed(), "Мёртвое тело не отбрасывается")
	assert.True(t, e.Dying, "Умирание не откатывается")
}

func TestWorld_DamageFromSourceTriggersFlee(t *testing.T) {
	w := flatWorld(t)
	h, err := w.Spawn("sheep", 0.5, 5, 0.5)
	require.NoError(t, err)

	require.NoError(t, w.TakeDamageFrom(h, 2, vec.Vec3Float{X: -3, Y: 5, Z: 0.5}))
	w.Step(context.Background(), tickDt)

	e, err := w.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 8.0, e.Health)
	assert.Equal(t, ai.StateFlee, e.Brain.State)
	assert.Greater(t, e.Brain.MoveDir.X, 0.9, "Бегство от источника урона")

	stepN(w, 20, tickDt)
	assert.Greater(t, e.Phys.Position.X, 1.5)
}

func TestWorld_FleeingRabbitStuckInPitGoesIdle(t *testing.T) {
	g := terrain.NewGrid()
	g.Fill(vec.Vec3{X: -30, Y: 4, Z: -30}, vec.Vec3{X: 30, Y: 4, Z: 30}, true)
	g.Fill(vec.Vec3{X: -4, Y: 5, Z: -4}, vec.Vec3{X: 4, Y: 6, Z: 4}, true)
	g.Set(0, 5, 0, false)
	g.Set(0, 6, 0, false)

	w := NewWorld(g, Settings{Seed: 7})
	for _, s := range testSpecies() {
		require.NoError(t, w.RegisterSpecies(s))
	}
	h, err := w.Spawn("rabbit", 0.5, 5, 0.5)
	require.NoError(t, err)
	stepN(w, 2, tickDt)

	require.NoError(t, w.TakeDamageFrom(h, 1, vec.Vec3Float{X: -3, Y: 7, Z: 0.5}))
	e, err := w.Get(h)
	require.NoError(t, err)
	require.Equal(t, ai.StateFlee, e.Brain.State)

	// Первую секунду заяц ещё доходит до стенки ямы, застревание видно на второй проверке
	stepN(w, 50, tickDt)

	assert.NotEqual(t, ai.StateFlee, e.Brain.State, "Застрявший заяц перестаёт убегать")
	assert.False(t, e.Brain.Moving)
	assert.Equal(t, 0, e.Phys.Position.Floor().X)
	assert.Equal(t, 0, e.Phys.Position.Floor().Z)
	assert.Less(t, e.Phys.Position.Y, 7.0, "Прыжка не хватает, чтобы выбраться")
}

func TestWorld_PredatorAttackHook(t *testing.T) {
	var w *World
	var attacks [][2]Handle
	w = flatWorld(t, WithHooks(Hooks{OnAttack: func(attacker, target Handle) {
		attacks = append(attacks, [2]Handle{attacker, target})
		src, err := w.Pose(attacker)
		require.NoError(t, err)
		// Хук вызывается вне блокировки мира
		require.NoError(t, w.TakeDamageFrom(target, 1, src.Position))
	}}))

	wolf, err := w.Spawn("wolf", 0.5, 5, 0.5)
	require.NoError(t, err)
	rabbit, err := w.Spawn("rabbit", 1.5, 5, 0.5)
	require.NoError(t, err)

	stats := w.Step(context.Background(), tickDt)
	assert.Equal(t, 1, stats.Attacks)
	require.Len(t, attacks, 1)
	assert.Equal(t, [2]Handle{wolf, rabbit}, attacks[0])

	e, err := w.Get(rabbit)
	require.NoError(t, err)
	assert.Equal(t, 2.0, e.Health)

	w.Step(context.Background(), tickDt)
	assert.Len(t, attacks, 1, "Перезарядка атаки")
}

func TestWorld_HandlesAndCompaction(t *testing.T) {
	w := flatWorld(t)
	a, err := w.Spawn("sheep", 0.5, 5, 0.5)
	require.NoError(t, err)
	b, err := w.Spawn("sheep", 3.5, 5, 0.5)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HandleFromID(a.ID()))

	require.NoError(t, w.Remove(a))
	assert.Equal(t, 1, w.Len())
	assert.True(t, errors.Is(w.TakeDamage(a, 1), ErrUnknownEntity), "Удалённая сущность недоступна")
	_, err = w.Pose(a)
	assert.ErrorIs(t, err, ErrUnknownEntity)

	assert.Equal(t, 1, w.Compact())
	assert.Equal(t, 0, w.Compact(), "Повторное сжатие ничего не делает")

	c, err := w.Spawn("wolf", 0.5, 5, 3.5)
	require.NoError(t, err)
	assert.Equal(t, a.Index, c.Index, "Слот переиспользуется")
	assert.Equal(t, a.Generation+1, c.Generation)

	assert.ErrorIs(t, w.ApplyKnockback(a, vec.Vec3Float{X: 1}, 1), ErrUnknownEntity, "Старый дескриптор устарел")
	assert.ErrorIs(t, w.TakeDamage(Handle{Index: 99}, 1), ErrUnknownEntity)

	p, err := w.Pose(c)
	require.NoError(t, err)
	assert.Equal(t, "wolf", p.Species)
	assert.Len(t, w.Snapshot(), 2)
}

func TestWorld_CompactFreesDead(t *testing.T) {
	w := flatWorld(t)
	h, err := w.Spawn("rabbit", 0.5, 5, 0.5)
	require.NoError(t, err)

	require.NoError(t, w.TakeDamage(h, 10))
	assert.Equal(t, 0, w.Compact(), "Умирающая сущность ещё не освобождается")

	stepN(w, 25, 0.1)
	assert.Equal(t, 1, w.Compact())
	assert.Equal(t, 0, w.Len())
}

func TestWorld_PoseLimbs(t *testing.T) {
	w := flatWorld(t)
	sheep, err := w.Spawn("sheep", 0.5, 5, 0.5)
	require.NoError(t, err)
	villager, err := w.Spawn("villager", 5.5, 5, 0.5)
	require.NoError(t, err)

	ps, err := w.Pose(sheep)
	require.NoError(t, err)
	assert.Len(t, ps.Limbs, 4, "FL, FR, BL, BR")
	assert.Equal(t, []float64{0, 0, 0, 0}, ps.Limbs, "Стоящее существо не машет ногами")

	pv, err := w.Pose(villager)
	require.NoError(t, err)
	assert.Len(t, pv.Limbs, 2)

	e, err := w.Get(sheep)
	require.NoError(t, err)
	e.Brain.Moving = true
	e.AnimTime = math.Pi / 2
	ps, err = w.Pose(sheep)
	require.NoError(t, err)
	assert.InDelta(t, limbSwing, ps.Limbs[0], 1e-9)
	assert.InDelta(t, -limbSwing, ps.Limbs[1], 1e-9, "Диагональные пары в противофазе")
	assert.InDelta(t, -limbSwing, ps.Limbs[2], 1e-9)
	assert.InDelta(t, limbSwing, ps.Limbs[3], 1e-9)
}

func TestWorld_UnstuckAndRescue(t *testing.T) {
	w := flatWorld(t)
	stuck, err := w.Spawn("sheep", 0.5, 4.5, 0.5)
	require.NoError(t, err)
	falling, err := w.Spawn("sheep", 50.5, -49.99, 0.5)
	require.NoError(t, err)

	stats := w.Step(context.Background(), tickDt)
	assert.Equal(t, 1, stats.Unstuck)
	assert.Equal(t, 1, stats.Rescued)

	e, err := w.Get(stuck)
	require.NoError(t, err)
	assert.Equal(t, 5.0, e.Phys.Position.Y, "Вытолкнуто на верх блока")

	e, err = w.Get(falling)
	require.NoError(t, err)
	assert.Equal(t, 100.0, e.Phys.Position.Y)
	assert.GreaterOrEqual(t, e.Phys.Velocity.Y, 0.0)
}

func TestWorld_ClampsDeltaTime(t *testing.T) {
	w := flatWorld(t)
	h, err := w.Spawn("sheep", 50.5, 20, 0.5)
	require.NoError(t, err)

	w.Step(context.Background(), 5)

	e, err := w.Get(h)
	require.NoError(t, err)
	assert.InDelta(t, -3.0, e.Phys.Velocity.Y, 1e-9, "Шаг ограничен 0.1 с")
	assert.Zero(t, w.Step(context.Background(), 0).Updated)
}

func TestWorld_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := flatWorld(t, WithMetrics(NewMetrics(reg)))
	for i := 0; i < 3; i++ {
		_, err := w.Spawn("sheep", float64(i*3)+0.5, 5, 0.5)
		require.NoError(t, err)
	}
	_, err := w.Spawn("sheep", 50.5, -49.99, 0.5)
	require.NoError(t, err)

	stepN(w, 40, tickDt)

	assert.Equal(t, 4.0, gatherValue(t, reg, "creatures_live_entities"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "creatures_rescues_total"))
	assert.Equal(t, 40.0, gatherValue(t, reg, "creatures_tick_duration_seconds"), "Число наблюдений длительности тика")
}

// gatherValue возвращает значение метрики без меток (для гистограмм - число наблюдений)
func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		require.NotEmpty(t, f.GetMetric())
		m := f.GetMetric()[0]
		switch {
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue()
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue()
		case m.GetHistogram() != nil:
			return float64(m.GetHistogram().GetSampleCount())
		}
	}
	t.Fatalf("метрика %s не найдена", name)
	return 0
}
