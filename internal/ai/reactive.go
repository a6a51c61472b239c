package ai

const (
	DefaultDetectionRadius = 8.0
	DefaultAttackRange     = 1.5
	AttackCooldown         = 1.0
	chaseStopRatio         = 0.8 // Хищник останавливается на этой доле дальности атаки
)

// Wander - поведение по умолчанию без переопределений
type Wander struct{}

// Override никогда не перехватывает тик
func (Wander) Override(*Brain, *Context) bool { return false }

// Prey убегает от враждебных существ в радиусе обнаружения
type Prey struct {
	DetectionRadius float64
}

// Override переводит в бегство, если рядом есть угроза
func (p Prey) Override(b *Brain, c *Context) bool {
	threat, ok := nearest(c, radiusOr(p.DetectionRadius, DefaultDetectionRadius), func(o Perception) bool {
		return o.Hostile
	})
	if !ok {
		return false
	}

	duration := FleeRefresh
	if b.State == StateFlee && b.Timer > duration {
		duration = b.Timer
	}
	b.StartFlee(threat.Position, duration)
	b.continueFlee(c)
	return true
}

// Predator преследует добычу и атакует в ближнем радиусе
type Predator struct {
	DetectionRadius float64
	AttackRange     float64
	Prey            []string // Виды-цели. Пустой список - любые невраждебные существа.
}

// Override ведёт погоню. Потеряв цель, автомат уходит в простой и отдаёт тик блужданию.
func (p Predator) Override(b *Brain, c *Context) bool {
	target, ok := nearest(c, radiusOr(p.DetectionRadius, DefaultDetectionRadius), p.isPrey)
	if !ok {
		if b.State == StateChase {
			b.toIdle(LostTargetIdle)
		}
		return false
	}

	attackRange := radiusOr(p.AttackRange, DefaultAttackRange)
	b.State = StateChase
	b.ChaseTarget = target.ID
	b.Path = nil
	b.PathIndex = 0

	delta := target.Position.Sub(c.Position).Horizontal()
	dist := delta.HorizontalLength()

	if dist > attackRange*chaseStopRatio {
		b.face(b.steer(c, delta.Normalized()))
	} else {
		b.Stop()
		if dist > 0 {
			b.TargetYaw = delta.Yaw()
		}
	}

	if dist <= attackRange && b.AttackCooldown <= 0 && c.Attack != nil {
		c.Attack(target.ID)
		b.AttackCooldown = AttackCooldown
	}
	return true
}

func (p Predator) isPrey(o Perception) bool {
	if len(p.Prey) == 0 {
		return !o.Hostile
	}
	for _, name := range p.Prey {
		if name == o.Species {
			return true
		}
	}
	return false
}

// nearest ищет ближайшее живое существо, удовлетворяющее фильтру, в радиусе radius
func nearest(c *Context, radius float64, match func(Perception) bool) (Perception, bool) {
	var (
		best   Perception
		found  bool
		bestSq = radius * radius
	)
	for _, o := range c.Others {
		if o.ID == c.SelfID || !o.Alive || !match(o) {
			continue
		}
		d := o.Position.DistanceSqTo(c.Position)
		if d < bestSq || (!found && d <= bestSq) {
			best = o
			bestSq = d
			found = true
		}
	}
	return best, found
}

func radiusOr(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
