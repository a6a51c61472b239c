package physics

import (
	"math"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

const (
	DefaultCurveSpeed = 3.0 // Скорость прохождения кривой (доля пути в секунду)
	climbArcFactor    = 0.2 // Высота дуги относительно перепада высот
)

// Climb - состояние скриптового подъёма на блок
type Climb struct {
	Active   bool
	Start    vec.Vec3Float
	End      vec.Vec3Float
	Progress float64 // 0..1
}

// EaseInOut - квадратичное сглаживание 0..1
func EaseInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

// AttemptClimb начинает подъём, если в колонке (probeX, probeZ) на текущем уровне стоит блок,
// а два блока над ним свободны. Возвращает true, если подъём начат.
func AttemptClimb(t terrain.Query, s *State, probeX, probeZ float64) bool {
	currentY := int(math.Floor(s.Position.Y))
	bx := int(math.Floor(probeX))
	bz := int(math.Floor(probeZ))

	if !t.IsSolid(bx, currentY, bz) {
		return false
	}
	if t.IsSolid(bx, currentY+1, bz) || t.IsSolid(bx, currentY+2, bz) {
		return false
	}

	s.Climb = Climb{
		Active: true,
		Start:  s.Position,
		End: vec.Vec3Float{
			X: float64(bx) + 0.5,
			Y: float64(currentY + 1),
			Z: float64(bz) + 0.5,
		},
		Progress: 0,
	}
	return true
}

// advance продвигает подъём и возвращает true, когда точка назначения достигнута
func (c *Climb) advance(pos *vec.Vec3Float, speed, dt float64) bool {
	c.Progress += speed * dt

	if c.Progress >= 1.0 {
		c.Progress = 1.0
		*pos = c.End
		c.Active = false
		return true
	}

	t := c.Progress
	smoothT := EaseInOut(t)

	pos.X = c.Start.X + (c.End.X-c.Start.X)*smoothT
	pos.Z = c.Start.Z + (c.End.Z-c.Start.Z)*smoothT

	// Параболическая дуга по Y
	heightDiff := c.End.Y - c.Start.Y
	arcHeight := heightDiff * climbArcFactor
	yBase := c.Start.Y + heightDiff*smoothT
	pos.Y = yBase + 4*arcHeight*t*(1-t)
	return false
}
