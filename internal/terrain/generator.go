package terrain

import (
	"math"

	"github.com/annel0/voxel-creatures/internal/vec"
	"github.com/aquilax/go-perlin"
)

// Generator строит демонстрационный ландшафт из шума Перлина
type Generator struct {
	Seed       int64   // Сид для генерации шума
	NoiseScale float64 // Масштаб шума (сглаженность ландшафта)
	BaseHeight int     // Минимальная высота поверхности
	Amplitude  int     // Разброс высот над BaseHeight
	noise      *perlin.Perlin
}

// NewGenerator создаёт новый генератор ландшафта
func NewGenerator(seed int64, baseHeight, amplitude int) *Generator {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав

	return &Generator{
		Seed:       seed,
		NoiseScale: 0.05,
		BaseHeight: baseHeight,
		Amplitude:  amplitude,
		noise:      perlin.NewPerlin(alpha, beta, n, seed),
	}
}

// Height возвращает высоту поверхности колонки (первый пустой уровень)
func (g *Generator) Height(x, z int) int {
	// Шум в диапазоне примерно [-1, 1] переводим в [0, 1]
	n := (g.noise.Noise2D(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale) + 1.0) / 2.0
	n = math.Max(0, math.Min(1, n))
	return g.BaseHeight + int(math.Round(n*float64(g.Amplitude)))
}

// Generate заполняет сетку size x size колонками от y=0 до высоты поверхности
func (g *Generator) Generate(size int) *Grid {
	grid := NewGrid()
	for x := 0; x < size; x++ {
		for z := 0; z < size; z++ {
			h := g.Height(x, z)
			grid.Fill(vec.Vec3{X: x, Y: 0, Z: z}, vec.Vec3{X: x, Y: h - 1, Z: z}, true)
		}
	}
	return grid
}
