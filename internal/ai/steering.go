package ai

import (
	"math"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

const (
	probeDistance = 1.0  // Насколько далеко вперёд смотрит зонд
	shoulderRatio = 0.9  // Смещение боковых зондов в долях половины ширины
	steerJitter   = 0.3  // Случайная добавка к оценке направления
	steerCount    = 8    // Сколько направлений перебирает BestDirection
	maxSafeDrop   = 3    // Обрыв глубже двух уровней считается опасным
	blockedScore  = -1e9 // Оценка недоступного направления
)

// ObstacleAhead проверяет три зонда (центр и плечи) на расстоянии probeDistance по направлению dir.
// Препятствием считается стена без места над ней, уступ без запаса высоты и обрыв глубже двух уровней.
func ObstacleAhead(t terrain.Query, pos, dir vec.Vec3Float, width float64) bool {
	dir = dir.Horizontal().Normalized()
	if dir == (vec.Vec3Float{}) {
		return false
	}

	// Перпендикуляр к направлению в плоскости XZ
	side := vec.Vec3Float{X: dir.Z, Z: -dir.X}
	shoulder := width / 2 * shoulderRatio

	for _, offset := range [3]float64{0, -shoulder, shoulder} {
		probe := pos.Add(dir.Mul(probeDistance)).Add(side.Mul(offset))
		if probeBlocked(t, probe) {
			return true
		}
	}
	return false
}

func probeBlocked(t terrain.Query, probe vec.Vec3Float) bool {
	bx := int(math.Floor(probe.X))
	by := int(math.Floor(probe.Y))
	bz := int(math.Floor(probe.Z))

	if t.IsSolid(bx, by, bz) {
		// На блок можно взобраться, только если над ним два свободных уровня
		return t.IsSolid(bx, by+1, bz) || t.IsSolid(bx, by+2, bz)
	}
	if t.IsSolid(bx, by+1, bz) {
		return true
	}
	for d := 1; d <= maxSafeDrop; d++ {
		if t.IsSolid(bx, by-d, bz) {
			return false
		}
	}
	return true
}

// BestDirection выбирает из восьми направлений свободное и наиболее близкое к preferred.
// Случайная добавка из r разбивает равенство оценок. Возвращает false, если все направления закрыты.
func BestDirection(t terrain.Query, pos, preferred vec.Vec3Float, width float64, r Rand) (vec.Vec3Float, bool) {
	preferred = preferred.Horizontal().Normalized()

	best := vec.Vec3Float{}
	bestScore := blockedScore
	for i := 0; i < steerCount; i++ {
		dir := vec.FromYaw(float64(i) * 2 * math.Pi / steerCount)
		if ObstacleAhead(t, pos, dir, width) {
			continue
		}

		score := dir.Dot(preferred)
		if r != nil {
			score += r.Float64() * steerJitter
		}
		if score > bestScore {
			bestScore = score
			best = dir
		}
	}
	return best, bestScore > blockedScore
}
