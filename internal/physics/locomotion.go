package physics

import (
	"fmt"
	"math"
	"strings"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

const (
	DefaultGravity     = 30.0
	DefaultJumpForce   = 8.0
	TerminalVelocity   = -40.0
	DefaultMaxDelta    = 0.1   // Максимальный шаг симуляции
	DefaultWorldFloorY = -50.0 // Ниже этой высоты существо считается выпавшим из мира
	DefaultRescueY     = 100.0 // Высота телепорта при выпадении

	levitationPop     = 5.0
	levitationLift    = 1.5 // Подъёмная сила в долях гравитации
	levitationMaxRise = 2.0
)

// Mode - способ передвижения
type Mode uint8

const (
	ModeWalker Mode = iota
	ModeHopper
)

func (m Mode) String() string {
	switch m {
	case ModeWalker:
		return "walker"
	case ModeHopper:
		return "hopper"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode разбирает имя способа передвижения из конфигурации
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "walker", "walk":
		return ModeWalker, nil
	case "hopper", "hop":
		return ModeHopper, nil
	default:
		return 0, fmt.Errorf("unknown locomotion mode %q", s)
	}
}

// Motor - параметры движения вида
type Motor struct {
	Speed      float64 // Горизонтальная скорость, ед/с
	Gravity    float64
	JumpForce  float64 // Импульс прыжка (только для прыгунов)
	CurveSpeed float64 // Скорость подъёма на блок
}

// DefaultMotor возвращает параметры по умолчанию для указанной скорости
func DefaultMotor(speed float64) Motor {
	return Motor{
		Speed:      speed,
		Gravity:    DefaultGravity,
		JumpForce:  DefaultJumpForce,
		CurveSpeed: DefaultCurveSpeed,
	}
}

// State - физическое состояние тела, принадлежит сущности
type State struct {
	Position   vec.Vec3Float // Центр основания коллайдера
	Velocity   vec.Vec3Float // Используется только Y, горизонталь задаётся намерением
	Yaw        float64
	OnGround   bool
	Knockback  Knockback
	Climb      Climb
	Levitation float64 // Оставшееся время левитации, с
}

// Levitate подбрасывает тело и включает подъёмную силу на duration секунд
func (s *State) Levitate(duration float64) {
	if duration <= 0 {
		return
	}
	s.Levitation = duration
	s.Velocity.Y = levitationPop
	s.OnGround = false
}

// Intent - желаемое направление движения на текущий тик
type Intent struct {
	Direction vec.Vec3Float // Горизонтальный единичный вектор
	Active    bool
}

// StepResult сообщает о событиях шага, которые интересуют вызывающий код
type StepResult struct {
	Blocked  bool // Горизонтальное движение упёрлось в стену
	Unstuck  bool // Тело вытолкнуто из твёрдого вокселя
	Climbing bool // Идёт скриптовый подъём
	Climbed  bool // Подъём завершён на этом тике
	Stepped  bool // Прыгун запрыгнул на блок
	Landed   bool // Тело приземлилось на этом тике
	Rescued  bool // Сработал телепорт после выпадения из мира
}

// Locomotion продвигает физическое состояние на один тик
type Locomotion interface {
	Step(t terrain.Query, s *State, body Body, m Motor, in Intent, dt float64) StepResult
}

// For возвращает реализацию для способа передвижения
func For(mode Mode) Locomotion {
	if mode == ModeHopper {
		return Hopper{}
	}
	return Walker{}
}

// Limits - глобальные ограничения шага
type Limits struct {
	MaxDelta    float64
	WorldFloorY float64
	RescueY     float64
}

// DefaultLimits возвращает ограничения по умолчанию
func DefaultLimits() Limits {
	return Limits{
		MaxDelta:    DefaultMaxDelta,
		WorldFloorY: DefaultWorldFloorY,
		RescueY:     DefaultRescueY,
	}
}

// Advance выполняет полный физический шаг: ограничивает dt, вызывает способ передвижения,
// ведёт таймер левитации и спасает тела, выпавшие из мира.
func Advance(loco Locomotion, t terrain.Query, s *State, body Body, m Motor, in Intent, dt float64, lim Limits) StepResult {
	if lim.MaxDelta > 0 && dt > lim.MaxDelta {
		dt = lim.MaxDelta
	}
	if dt <= 0 {
		return StepResult{}
	}

	res := loco.Step(t, s, body, m, in, dt)

	if s.Levitation > 0 {
		s.Levitation = math.Max(0, s.Levitation-dt)
	}

	if s.Position.Y < lim.WorldFloorY {
		s.Position.Y = lim.RescueY
		if s.Velocity.Y < 0 {
			s.Velocity.Y = 0
		}
		s.OnGround = false
		res.Rescued = true
	}
	return res
}

// desiredDelta - горизонтальное смещение от намерения и отбрасывания за тик
func desiredDelta(s *State, m Motor, in Intent, dt float64) (dx, dz float64) {
	if in.Active {
		dx = in.Direction.X * m.Speed * dt
		dz = in.Direction.Z * m.Speed * dt
	}
	kx, kz := s.Knockback.Advance(dt)
	return dx + kx, dz + kz
}

// applyGravity ускоряет тело вниз с ограничением скорости падения
func applyGravity(s *State, m Motor, dt float64) {
	s.Velocity.Y -= m.Gravity * dt
	if s.Levitation > 0 && s.Velocity.Y < levitationMaxRise {
		s.Velocity.Y = math.Min(s.Velocity.Y+m.Gravity*levitationLift*dt, levitationMaxRise)
	}
	if s.Velocity.Y < TerminalVelocity {
		s.Velocity.Y = TerminalVelocity
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
