package terrain

import (
	"sync"

	"github.com/annel0/voxel-creatures/internal/vec"
)

// Query отвечает на вопрос, занят ли воксель твёрдым блоком.
// Реализация должна быть только для чтения на время тика.
type Query interface {
	IsSolid(x, y, z int) bool
}

// QueryFunc позволяет использовать обычную функцию как Query
type QueryFunc func(x, y, z int) bool

// IsSolid реализует Query
func (f QueryFunc) IsSolid(x, y, z int) bool {
	return f(x, y, z)
}

// BlockLookup возвращает ID блока по координатам; ok == false, если блока нет
type BlockLookup func(x, y, z int) (id uint16, ok bool)

// FromBlocks строит Query поверх поиска блоков: блок присутствует и не воздух => твёрдый
func FromBlocks(lookup BlockLookup, airID uint16) Query {
	return QueryFunc(func(x, y, z int) bool {
		id, ok := lookup(x, y, z)
		return ok && id != airID
	})
}

// Grid - разреженное хранилище твёрдых вокселей
type Grid struct {
	mu    sync.RWMutex
	solid map[vec.Vec3]struct{}
}

// NewGrid создаёт пустую сетку
func NewGrid() *Grid {
	return &Grid{
		solid: make(map[vec.Vec3]struct{}),
	}
}

// IsSolid реализует Query
func (g *Grid) IsSolid(x, y, z int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.solid[vec.Vec3{X: x, Y: y, Z: z}]
	return ok
}

// Set устанавливает или очищает воксель
func (g *Grid) Set(x, y, z int, solid bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := vec.Vec3{X: x, Y: y, Z: z}
	if solid {
		g.solid[key] = struct{}{}
	} else {
		delete(g.solid, key)
	}
}

// Fill заполняет параллелепипед [min, max] включительно
func (g *Grid) Fill(min, max vec.Vec3, solid bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				key := vec.Vec3{X: x, Y: y, Z: z}
				if solid {
					g.solid[key] = struct{}{}
				} else {
					delete(g.solid, key)
				}
			}
		}
	}
}

// Count возвращает количество твёрдых вокселей
func (g *Grid) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.solid)
}

// SurfaceY возвращает высоту, на которой можно стоять в колонке (x, z),
// просматривая вниз от fromY. Второе значение false, если опоры не найдено.
func SurfaceY(t Query, x, z, fromY, minY int) (int, bool) {
	for y := fromY; y >= minY; y-- {
		if t.IsSolid(x, y, z) && !t.IsSolid(x, y+1, z) && !t.IsSolid(x, y+2, z) {
			return y + 1, true
		}
	}
	return 0, false
}
