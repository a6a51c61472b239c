package creature

import (
	"fmt"
	"strings"

	"github.com/annel0/voxel-creatures/internal/ai"
	"github.com/annel0/voxel-creatures/internal/physics"
)

// Значения по умолчанию для описания вида
const (
	DefaultLegSwingSpeed = 10.0
	DefaultLegs          = 4
	DefaultMaxHealth     = 10.0
	DefaultSpeed         = 2.0
)

// Поведение вида
const (
	BehaviorWander   = "wander"
	BehaviorPrey     = "prey"
	BehaviorPredator = "predator"
)

// Species описывает вид существа: размеры, движение, здоровье и поведение.
// Загружается из YAML.
type Species struct {
	Name           string  `yaml:"name"`
	Width          float64 `yaml:"width"`
	Height         float64 `yaml:"height"`
	Depth          float64 `yaml:"depth"`
	CollisionScale float64 `yaml:"collision_scale"`

	Locomotion string  `yaml:"locomotion"` // walker | hopper
	Hops       bool    `yaml:"hops"`       // Устаревший флаг прыгуна
	Speed      float64 `yaml:"speed"`
	JumpForce  float64 `yaml:"jump_force"`
	Gravity    float64 `yaml:"gravity"`
	CurveSpeed float64 `yaml:"curve_speed"`

	MaxHealth     float64 `yaml:"max_health"`
	Legs          int     `yaml:"legs"` // 4 - четвероногие, 2 - двуногие
	LegSwingSpeed float64 `yaml:"leg_swing_speed"`

	Behavior        string   `yaml:"behavior"` // wander | prey | predator
	Hostile         bool     `yaml:"hostile"`
	DetectionRadius float64  `yaml:"detection_radius"`
	AttackRange     float64  `yaml:"attack_range"`
	Targets         []string `yaml:"targets"` // Виды-цели хищника
}

// WithDefaults возвращает копию вида с заполненными необязательными полями
func (s Species) WithDefaults() Species {
	if s.CollisionScale == 0 {
		s.CollisionScale = physics.DefaultCollisionScale
	}
	if s.Locomotion == "" && s.Hops {
		s.Locomotion = physics.ModeHopper.String()
	}
	if s.Speed == 0 {
		s.Speed = DefaultSpeed
	}
	if s.JumpForce == 0 {
		s.JumpForce = physics.DefaultJumpForce
	}
	if s.Gravity == 0 {
		s.Gravity = physics.DefaultGravity
	}
	if s.CurveSpeed == 0 {
		s.CurveSpeed = physics.DefaultCurveSpeed
	}
	if s.MaxHealth == 0 {
		s.MaxHealth = DefaultMaxHealth
	}
	if s.Legs == 0 {
		s.Legs = DefaultLegs
	}
	if s.LegSwingSpeed == 0 {
		s.LegSwingSpeed = DefaultLegSwingSpeed
	}
	if s.Behavior == "" {
		s.Behavior = BehaviorWander
	}
	return s
}

// Validate проверяет описание вида. Ошибки оборачивают ErrInvalidSpecies.
func (s Species) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpecies)
	}
	if err := s.Body().Validate(); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSpecies, s.Name, err)
	}

	mode, err := physics.ParseMode(s.Locomotion)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSpecies, s.Name, err)
	}
	if s.Hops && mode != physics.ModeHopper {
		return fmt.Errorf("%w %q: hops flag contradicts locomotion %q", ErrInvalidSpecies, s.Name, s.Locomotion)
	}
	if mode == physics.ModeHopper && s.JumpForce <= 0 {
		return fmt.Errorf("%w %q: hopper needs positive jump force", ErrInvalidSpecies, s.Name)
	}

	if s.Speed < 0 {
		return fmt.Errorf("%w %q: negative speed %.2f", ErrInvalidSpecies, s.Name, s.Speed)
	}
	if s.Gravity <= 0 || s.CurveSpeed <= 0 {
		return fmt.Errorf("%w %q: gravity and curve speed must be positive", ErrInvalidSpecies, s.Name)
	}
	if s.MaxHealth <= 0 {
		return fmt.Errorf("%w %q: max health must be positive", ErrInvalidSpecies, s.Name)
	}
	if s.Legs != 2 && s.Legs != 4 {
		return fmt.Errorf("%w %q: legs must be 2 or 4, got %d", ErrInvalidSpecies, s.Name, s.Legs)
	}
	if s.LegSwingSpeed < 0 || s.DetectionRadius < 0 || s.AttackRange < 0 {
		return fmt.Errorf("%w %q: negative animation or sensing parameter", ErrInvalidSpecies, s.Name)
	}

	switch s.Behavior {
	case BehaviorWander, BehaviorPredator:
	case BehaviorPrey:
		if s.Hostile {
			return fmt.Errorf("%w %q: prey cannot be hostile", ErrInvalidSpecies, s.Name)
		}
	default:
		return fmt.Errorf("%w %q: unknown behavior %q", ErrInvalidSpecies, s.Name, s.Behavior)
	}
	return nil
}

// Body возвращает коллайдер вида
func (s Species) Body() physics.Body {
	return physics.Body{
		Width:          s.Width,
		Height:         s.Height,
		Depth:          s.Depth,
		CollisionScale: s.CollisionScale,
	}
}

// Motor возвращает параметры движения вида
func (s Species) Motor() physics.Motor {
	return physics.Motor{
		Speed:      s.Speed,
		Gravity:    s.Gravity,
		JumpForce:  s.JumpForce,
		CurveSpeed: s.CurveSpeed,
	}
}

// Mode возвращает способ передвижения. Вид должен пройти Validate.
func (s Species) Mode() physics.Mode {
	mode, _ := physics.ParseMode(s.Locomotion)
	return mode
}

// NewBehavior создаёт видовое поведение для автомата
func (s Species) NewBehavior() ai.Behavior {
	switch s.Behavior {
	case BehaviorPrey:
		return ai.Prey{DetectionRadius: s.DetectionRadius}
	case BehaviorPredator:
		return ai.Predator{
			DetectionRadius: s.DetectionRadius,
			AttackRange:     s.AttackRange,
			Prey:            s.Targets,
		}
	default:
		return ai.Wander{}
	}
}
