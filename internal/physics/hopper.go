package physics

import (
	"math"

	"github.com/annel0/voxel-creatures/internal/terrain"
)

const (
	stepProbeHeight = 1.1 // Проверка свободного места при запрыгивании на блок
	groundProbe     = 0.1
)

// Hopper - передвижение прыжками с автоматическим запрыгиванием на блоки
type Hopper struct{}

// Step продвигает прыгуна на один тик
func (Hopper) Step(t terrain.Query, s *State, body Body, m Motor, in Intent, dt float64) StepResult {
	var res StepResult
	wasGrounded := s.OnGround

	jump := m.JumpForce
	if jump <= 0 {
		jump = DefaultJumpForce
	}

	// Прыжок задаёт ритм движения
	if in.Active && s.OnGround {
		s.Velocity.Y = jump
		s.OnGround = false
	}

	applyGravity(s, m, dt)

	dx, dz := desiredDelta(s, m, in, dt)
	dy := s.Velocity.Y * dt

	// Вертикаль
	switch {
	case dy < 0:
		next := s.Position
		next.Y += dy
		if Collides(t, next, s.Yaw, body) {
			land(s, settle(t, s, body, math.Floor(next.Y)+1, s.Position.Y))
		} else {
			s.Position.Y = next.Y
			s.OnGround = false
		}
	case dy > 0:
		if fits(t, s, body, s.Position.Y+dy) {
			s.Position.Y += dy
		} else {
			s.Velocity.Y = 0
		}
		s.OnGround = false
	default:
		below := s.Position
		below.Y -= groundProbe
		if !Collides(t, below, s.Yaw, body) {
			s.OnGround = false
		}
	}

	stepped := false
	hopAxis := func(delta float64, onX bool) {
		if delta == 0 {
			return
		}
		next := s.Position
		if onX {
			next.X += delta
		} else {
			next.Z += delta
		}
		if !Collides(t, next, s.Yaw, body) {
			s.Position = next
			return
		}

		if s.OnGround && !stepped {
			probe := next
			probe.Y += stepProbeHeight
			up := next
			up.Y += 1
			if !Collides(t, probe, s.Yaw, body) && !Collides(t, up, s.Yaw, body) {
				s.Position = up
				s.Velocity.Y = jump
				s.OnGround = false
				stepped = true
				res.Stepped = true
				return
			}
		}
		res.Blocked = true
	}
	hopAxis(dx, true)
	hopAxis(dz, false)

	// Выталкивание, если ноги оказались внутри блока
	feet := s.Position.Floor()
	if t.IsSolid(feet.X, feet.Y, feet.Z) {
		s.Position.Y = float64(feet.Y + 1)
		s.Velocity.Y = 0
		res.Unstuck = true
	}

	res.Landed = !wasGrounded && s.OnGround
	return res
}
