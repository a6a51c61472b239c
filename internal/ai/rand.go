package ai

import "math/rand"

// seedPrime разносит сиды соседних слотов
const seedPrime = 2654435761

// Rand - источник случайности для решений ИИ. *rand.Rand удовлетворяет интерфейсу.
type Rand interface {
	Float64() float64
}

// NewRand создаёт воспроизводимый генератор для потока stream (обычно идентификатор сущности)
// в мире с сидом worldSeed.
func NewRand(worldSeed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewSource(worldSeed ^ int64(stream*seedPrime)))
}

// RandomInRange возвращает случайное значение в диапазоне [min, max)
func RandomInRange(r Rand, min, max float64) float64 {
	return min + r.Float64()*(max-min)
}
