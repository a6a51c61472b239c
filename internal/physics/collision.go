package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

// DefaultCollisionScale уменьшает эффективный коллайдер, чтобы не цепляться за стены
const DefaultCollisionScale = 0.8

// ErrInvalidBody возвращается для коллайдера с некорректными размерами
var ErrInvalidBody = errors.New("invalid body dimensions")

// Body представляет коллайдер существа в локальных осях
type Body struct {
	Width          float64 // Ширина (локальная ось X)
	Height         float64 // Высота
	Depth          float64 // Длина (локальная ось Z)
	CollisionScale float64 // Множитель эффективного размера (0, 1]
}

// NewBody создаёт коллайдер с масштабом по умолчанию
func NewBody(width, height, depth float64) Body {
	return Body{
		Width:          width,
		Height:         height,
		Depth:          depth,
		CollisionScale: DefaultCollisionScale,
	}
}

// Validate проверяет размеры коллайдера
func (b Body) Validate() error {
	if b.Width <= 0 || b.Height <= 0 || b.Depth <= 0 {
		return fmt.Errorf("%w: %.2fx%.2fx%.2f", ErrInvalidBody, b.Width, b.Height, b.Depth)
	}
	if b.CollisionScale <= 0 || b.CollisionScale > 1 {
		return fmt.Errorf("%w: collision scale %.2f outside (0, 1]", ErrInvalidBody, b.CollisionScale)
	}
	return nil
}

// Extents возвращает половины эффективных размеров по мировым осям X и Z
// для коллайдера, повёрнутого на yaw.
func (b Body) Extents(yaw float64) (halfX, halfZ float64) {
	cos := math.Abs(math.Cos(yaw))
	sin := math.Abs(math.Sin(yaw))

	effW := (b.Width*cos + b.Depth*sin) * b.CollisionScale
	effD := (b.Width*sin + b.Depth*cos) * b.CollisionScale

	return effW / 2, effD / 2
}

// Collides проверяет, пересекает ли коллайдер в позиции pos хотя бы один твёрдый воксель.
// pos - центр основания коллайдера.
func Collides(t terrain.Query, pos vec.Vec3Float, yaw float64, body Body) bool {
	hw, hd := body.Extents(yaw)

	startBX := int(math.Floor(pos.X - hw))
	endBX := int(math.Floor(pos.X + hw))
	startBY := int(math.Floor(pos.Y))
	endBY := int(math.Floor(pos.Y + body.Height - 0.01))
	startBZ := int(math.Floor(pos.Z - hd))
	endBZ := int(math.Floor(pos.Z + hd))

	for bx := startBX; bx <= endBX; bx++ {
		for by := startBY; by <= endBY; by++ {
			for bz := startBZ; bz <= endBZ; bz++ {
				if t.IsSolid(bx, by, bz) {
					return true
				}
			}
		}
	}
	return false
}

// SolidAt проверяет воксель, содержащий точку
func SolidAt(t terrain.Query, x, y, z float64) bool {
	return t.IsSolid(int(math.Floor(x)), int(math.Floor(y)), int(math.Floor(z)))
}
