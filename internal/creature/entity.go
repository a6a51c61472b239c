package creature

import (
	"fmt"
	"math"

	"github.com/annel0/voxel-creatures/internal/ai"
	"github.com/annel0/voxel-creatures/internal/physics"
	"github.com/annel0/voxel-creatures/internal/vec"
)

// Параметры жизненного цикла
const (
	FlashDuration     = 1.0         // Длительность вспышки урона, с
	DeathDuration     = 2.0         // После этого времени умирающая сущность считается мёртвой
	DeathTiltSpeed    = 5.0         // рад/с
	DeathTiltMax      = math.Pi / 2 // Существо заваливается на бок
	FleeOnDamage      = 5.0         // Сколько длится бегство после удара
	RotationSpeed     = 4.0         // рад/с
	rotationSnap      = 0.01
	limbSwing         = 0.5
)

// Handle - стабильный дескриптор сущности в арене мира
type Handle struct {
	Index      uint32
	Generation uint32
}

// ID упаковывает дескриптор в одно число
func (h Handle) ID() uint64 {
	return uint64(h.Generation)<<32 | uint64(h.Index)
}

// HandleFromID распаковывает дескриптор из ID
func HandleFromID(id uint64) Handle {
	return Handle{Index: uint32(id), Generation: uint32(id >> 32)}
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

// Entity - запись о существе. Изменяется только миром во время тика и через API урона.
type Entity struct {
	handle   Handle
	species  *Species
	loco     physics.Locomotion
	body     physics.Body
	motor    physics.Motor
	behavior ai.Behavior
	rng      ai.Rand

	// Seed используется только для визуальных вариаций и не влияет на ИИ и физику
	Seed int64

	Phys  physics.State
	Brain ai.Brain

	Health     float64
	MaxHealth  float64
	Dying      bool
	Dead       bool
	DeathTimer float64
	DeathTilt  float64
	FlashTimer float64
	AnimTime   float64

	removed bool
}

// Handle возвращает дескриптор сущности
func (e *Entity) Handle() Handle {
	return e.handle
}

// Species возвращает вид сущности
func (e *Entity) Species() *Species {
	return e.species
}

// Alive - сущность не умирает и не мертва
func (e *Entity) Alive() bool {
	return !e.Dying && !e.Dead
}

// TakeDamage снимает здоровье и запускает вспышку. Возвращает true, если удар оказался смертельным.
// Неположительный урон и урон по умирающей сущности игнорируются.
func (e *Entity) TakeDamage(amount float64) bool {
	if !e.Alive() || amount <= 0 {
		return false
	}

	e.Health = math.Max(0, e.Health-amount)
	e.FlashTimer = FlashDuration

	if e.Health == 0 {
		e.Dying = true
		e.DeathTimer = 0
		e.Brain.Stop()
		e.Brain.Path = nil
		return true
	}
	return false
}

// TakeDamageFrom наносит урон и, если сущность выжила, заставляет её бежать от источника
func (e *Entity) TakeDamageFrom(amount float64, source vec.Vec3Float) bool {
	killed := e.TakeDamage(amount)
	if !killed && e.Alive() && amount > 0 {
		e.Brain.StartFlee(source, FleeOnDamage)
	}
	return killed
}

// ApplyKnockback отбрасывает сущность. На умирающей сущности ничего не делает.
func (e *Entity) ApplyKnockback(direction vec.Vec3Float, force float64) {
	if !e.Alive() {
		return
	}
	e.Phys.ApplyKnockback(direction.Horizontal().Normalized(), force)
}

// Levitate включает левитацию на duration секунд
func (e *Entity) Levitate(duration float64) {
	if !e.Alive() {
		return
	}
	e.Phys.Levitate(duration)
}

// intent переводит решение автомата в намерение для физики
func (e *Entity) intent() physics.Intent {
	if !e.Alive() || !e.Brain.Moving {
		return physics.Intent{}
	}
	return physics.Intent{Direction: e.Brain.MoveDir, Active: true}
}

// advanceDeath продвигает последовательность смерти. Возвращает true, когда сущность стала мёртвой.
func (e *Entity) advanceDeath(dt float64) bool {
	if !e.Dying || e.Dead {
		return false
	}
	e.DeathTimer += dt
	e.DeathTilt = math.Min(DeathTiltMax, e.DeathTilt+DeathTiltSpeed*dt)
	if e.DeathTimer > DeathDuration {
		e.Dead = true
		return true
	}
	return false
}

// NormalizeAngle приводит угол к диапазону (-π, π]
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// SmoothYaw поворачивает current к target по кратчайшей дуге не быстрее RotationSpeed
func SmoothYaw(current, target, dt float64) float64 {
	diff := NormalizeAngle(target - current)
	if math.Abs(diff) < rotationSnap {
		return NormalizeAngle(target)
	}

	step := RotationSpeed * dt
	if math.Abs(diff) <= step {
		return NormalizeAngle(target)
	}
	if diff < 0 {
		step = -step
	}
	return NormalizeAngle(current + step)
}

// Pose - сигнал для визуального слоя
type Pose struct {
	Handle    Handle        `json:"-"`
	ID        uint64        `json:"id"`
	Species   string        `json:"species"`
	Seed      int64         `json:"seed"`
	Position  vec.Vec3Float `json:"position"`
	Yaw       float64       `json:"yaw"`
	Limbs     []float64     `json:"limbs"` // FL, FR, BL, BR для четвероногих; L, R для двуногих
	DeathTilt float64       `json:"death_tilt"`
	Flashing  bool          `json:"flashing"`
	Moving    bool          `json:"moving"`
	State     string        `json:"state"`
	Health    float64       `json:"health"`
	Dying     bool          `json:"dying"`
}

// pose собирает текущую позу сущности
func (e *Entity) pose() Pose {
	moving := e.Alive() && e.Brain.Moving

	limbs := make([]float64, e.species.Legs)
	if moving {
		swing := math.Sin(e.AnimTime) * limbSwing
		if e.species.Legs == 2 {
			limbs[0], limbs[1] = swing, -swing
		} else {
			limbs[0], limbs[1], limbs[2], limbs[3] = swing, -swing, -swing, swing
		}
	}

	return Pose{
		Handle:    e.handle,
		ID:        e.handle.ID(),
		Species:   e.species.Name,
		Seed:      e.Seed,
		Position:  e.Phys.Position,
		Yaw:       e.Phys.Yaw,
		Limbs:     limbs,
		DeathTilt: e.DeathTilt,
		Flashing:  e.FlashTimer > 0,
		Moving:    moving,
		State:     e.Brain.State.String(),
		Health:    e.Health,
		Dying:     e.Dying,
	}
}

// perception - снимок сущности для восприятия соседями
func (e *Entity) perception() ai.Perception {
	return ai.Perception{
		ID:       e.handle.ID(),
		Species:  e.species.Name,
		Position: e.Phys.Position,
		Hostile:  e.species.Hostile,
		Alive:    e.Alive(),
	}
}
