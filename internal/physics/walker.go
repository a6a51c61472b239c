package physics

import (
	"math"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

const (
	groundSampleScale = 0.8 // Углы опорной площадки в долях половины коллайдера
	groundScanDepth   = 2   // Сколько уровней ниже проверяется при прилипании к земле
	snapAbove         = -0.1
	snapBelow         = 1.0
	climbProbeMargin  = 0.01
)

// Walker - наземное передвижение с прилипанием к земле и подъёмом на блоки
type Walker struct{}

// Step продвигает ходока на один тик
func (Walker) Step(t terrain.Query, s *State, body Body, m Motor, in Intent, dt float64) StepResult {
	var res StepResult

	// Выталкивание, если центр основания оказался внутри блока
	cell := s.Position.Floor()
	if !s.Climb.Active && t.IsSolid(cell.X, cell.Y, cell.Z) {
		s.Position.Y = float64(cell.Y + 1)
		s.Velocity.Y = 0
		res.Unstuck = true
		return res
	}

	if s.Climb.Active {
		res.Climbing = true
		if s.Climb.advance(&s.Position, curveSpeed(m), dt) {
			s.Velocity.Y = 0
			s.OnGround = true
			res.Climbing = false
			res.Climbed = true
		}
		return res
	}

	dx, dz := desiredDelta(s, m, in, dt)
	hw, hd := body.Extents(s.Yaw)

	if dx != 0 {
		next := s.Position
		next.X += dx
		if !Collides(t, next, s.Yaw, body) {
			s.Position.X = next.X
		} else if AttemptClimb(t, s, next.X+sign(dx)*(hw+climbProbeMargin), s.Position.Z) {
			res.Climbing = true
			return res
		} else {
			res.Blocked = true
		}
	}

	if dz != 0 {
		next := s.Position
		next.Z += dz
		if !Collides(t, next, s.Yaw, body) {
			s.Position.Z = next.Z
		} else if AttemptClimb(t, s, s.Position.X, next.Z+sign(dz)*(hd+climbProbeMargin)) {
			res.Climbing = true
			return res
		} else {
			res.Blocked = true
		}
	}

	if s.Levitation > 0 {
		walkerAirborne(t, s, body, m, dt)
		return res
	}

	wasGrounded := s.OnGround
	groundSnap(t, s, body, m, dt)
	res.Landed = !wasGrounded && s.OnGround
	return res
}

// groundSnap прилипает к земле под опорной площадкой или падает под действием гравитации
func groundSnap(t terrain.Query, s *State, body Body, m Motor, dt float64) {
	fromY := int(math.Floor(s.Position.Y + 0.1))
	ground := supportLevel(t, s.Position, s.Yaw, body, fromY, fromY-groundScanDepth)

	dist := s.Position.Y - ground
	if dist >= snapAbove && dist < snapBelow && fits(t, s, body, ground) {
		land(s, ground)
		return
	}

	s.OnGround = false
	applyGravity(s, m, dt)
	prevY := s.Position.Y
	newY := prevY + s.Velocity.Y*dt

	if s.Velocity.Y > 0 {
		if fits(t, s, body, newY) {
			s.Position.Y = newY
		} else {
			s.Velocity.Y = 0
		}
		return
	}

	// Быстрое падение не должно проскакивать сквозь опору
	catch := supportLevel(t, s.Position, s.Yaw, body, int(math.Floor(prevY+0.1)), int(math.Floor(newY)))
	switch {
	case newY < catch:
		land(s, settle(t, s, body, catch, prevY))
	case !fits(t, s, body, newY):
		land(s, settle(t, s, body, math.Floor(newY)+1, prevY))
	default:
		s.Position.Y = newY
	}
}

func land(s *State, y float64) {
	s.Position.Y = y
	s.Velocity.Y = 0
	s.OnGround = true
}

// fits проверяет, что тело на высоте y не пересекает блоки
func fits(t terrain.Query, s *State, body Body, y float64) bool {
	pos := s.Position
	pos.Y = y
	return !Collides(t, pos, s.Yaw, body)
}

// settle поднимает высоту по целым уровням, пока тело не перестанет пересекать блоки,
// но не выше limit.
func settle(t terrain.Query, s *State, body Body, y, limit float64) float64 {
	for y < limit && !fits(t, s, body, y) {
		y++
	}
	return math.Min(y, limit)
}

// supportLevel возвращает высоту самой высокой опоры под пятью точками площадки
// (центр и четыре угла) на уровнях fromY..toY включительно, или -Inf, если опоры нет.
func supportLevel(t terrain.Query, pos vec.Vec3Float, yaw float64, body Body, fromY, toY int) float64 {
	hw := body.Width / 2 * body.CollisionScale * groundSampleScale
	hd := body.Depth / 2 * body.CollisionScale * groundSampleScale
	cos := math.Cos(yaw)
	sin := math.Sin(yaw)

	offsets := [5][2]float64{{0, 0}, {-hw, -hd}, {hw, -hd}, {-hw, hd}, {hw, hd}}

	best := math.Inf(-1)
	for _, o := range offsets {
		// Поворот локального смещения (x вдоль ширины, z вдоль длины)
		wx := pos.X + o[0]*cos + o[1]*sin
		wz := pos.Z - o[0]*sin + o[1]*cos
		bx := int(math.Floor(wx))
		bz := int(math.Floor(wz))

		for y := fromY; y >= toY; y-- {
			if t.IsSolid(bx, y, bz) {
				if top := float64(y + 1); top > best {
					best = top
				}
				break
			}
		}
	}
	return best
}

// walkerAirborne - вертикальное движение ходока во время левитации
func walkerAirborne(t terrain.Query, s *State, body Body, m Motor, dt float64) {
	s.OnGround = false
	applyGravity(s, m, dt)

	next := s.Position
	next.Y += s.Velocity.Y * dt
	if Collides(t, next, s.Yaw, body) {
		s.Velocity.Y = 0
		return
	}
	s.Position.Y = next.Y
}

func curveSpeed(m Motor) float64 {
	if m.CurveSpeed > 0 {
		return m.CurveSpeed
	}
	return DefaultCurveSpeed
}
