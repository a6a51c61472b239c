package physics

import "github.com/annel0/voxel-creatures/internal/vec"

const (
	KnockbackFriction = 5.0 // Коэффициент затухания в секунду
	KnockbackEpsilon  = 0.1 // Ниже этой скорости отбрасывание гасится
	KnockbackHop      = 5.0 // Вертикальный подскок при ударе
)

// Knockback хранит затухающую горизонтальную скорость отбрасывания
type Knockback struct {
	Velocity vec.Vec3Float
}

// Set задаёт скорость отбрасывания direction * force (только по горизонтали)
func (k *Knockback) Set(direction vec.Vec3Float, force float64) {
	k.Velocity = vec.Vec3Float{X: direction.X * force, Z: direction.Z * force}
}

// Speed возвращает текущую горизонтальную скорость отбрасывания
func (k Knockback) Speed() float64 {
	return k.Velocity.HorizontalLength()
}

// Advance возвращает смещение за dt и применяет трение
func (k *Knockback) Advance(dt float64) (dx, dz float64) {
	dx = k.Velocity.X * dt
	dz = k.Velocity.Z * dt

	k.Velocity.X -= k.Velocity.X * KnockbackFriction * dt
	k.Velocity.Z -= k.Velocity.Z * KnockbackFriction * dt

	if k.Velocity.HorizontalLength() < KnockbackEpsilon {
		k.Velocity = vec.Vec3Float{}
	}
	return dx, dz
}

// ApplyKnockback отбрасывает тело: горизонтальный импульс плюс небольшой подскок
func (s *State) ApplyKnockback(direction vec.Vec3Float, force float64) {
	s.Knockback.Set(direction, force)
	s.Velocity.Y = KnockbackHop
	s.OnGround = false
}
