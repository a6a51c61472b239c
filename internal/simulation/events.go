package simulation

import (
	"context"
	"time"

	"github.com/annel0/voxel-creatures/internal/eventbus"
	"github.com/annel0/voxel-creatures/internal/vec"
)

// publishTimeout ограничивает ожидание шины внутри тика
const publishTimeout = time.Second

// EventSource - источник событий симулятора в конверте
const EventSource = "voxel-creatures"

// Типы событий существ
const (
	EventSpawn  = "CreatureSpawned"
	EventAttack = "CreatureAttack"
	EventDeath  = "CreatureDeath"
)

// SpawnEvent - существо появилось в мире
type SpawnEvent struct {
	ID       uint64        `json:"id"`
	Species  string        `json:"species"`
	Seed     int64         `json:"seed"`
	Position vec.Vec3Float `json:"position"`
}

// AttackEvent - хищник атаковал цель
type AttackEvent struct {
	Attacker        uint64  `json:"attacker"`
	AttackerSpecies string  `json:"attacker_species"`
	Target          uint64  `json:"target"`
	TargetSpecies   string  `json:"target_species"`
	Damage          float64 `json:"damage"`
	TargetHealth    float64 `json:"target_health"`
	Tick            uint64  `json:"tick"`
}

// DeathEvent - анимация гибели завершилась
type DeathEvent struct {
	ID       uint64        `json:"id"`
	Species  string        `json:"species"`
	Position vec.Vec3Float `json:"position"`
	Tick     uint64        `json:"tick"`
}

// emit публикует событие, если шина подключена. Ошибки шины не останавливают тик.
func (s *Simulation) emit(eventType string, priority int, payload interface{}) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(EventSource, eventType, priority, payload)
	if err != nil {
		s.log.Error("Событие %s не сериализовано: %v", eventType, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("Событие %s не опубликовано: %v", eventType, err)
	}
}
