// Package pathfind ищет маршруты по воксельной сетке с учётом спусков и подъёмов на блок.
package pathfind

import (
	"container/heap"

	"github.com/annel0/voxel-creatures/internal/terrain"
	"github.com/annel0/voxel-creatures/internal/vec"
)

// Стоимость переходов
const (
	CostFlat    = 1.0
	CostDrop1   = 1.2
	CostDrop2   = 1.5
	CostStepUp  = 1.3
	goalReached = 1 // Манхэттенское расстояние, при котором цель считается достигнутой
)

// DefaultBudget - бюджет раскрытий для блуждающих существ
const DefaultBudget = 200

var directions = [4]vec.Vec3{
	{X: 1}, {X: -1}, {Z: 1}, {Z: -1},
}

// Result - результат поиска
type Result struct {
	Path       []vec.Vec3 // От старта до цели включительно
	Expansions int        // Сколько узлов было раскрыто
	Found      bool
}

// FindPath ищет путь от start до goal, раскрывая не более maxExpansions узлов.
// Возвращает nil, false, если путь не найден или бюджет исчерпан.
func FindPath(t terrain.Query, start, goal vec.Vec3Float, maxExpansions int) ([]vec.Vec3, bool) {
	res := Search(t, start.Floor(), goal.Floor(), maxExpansions)
	return res.Path, res.Found
}

// Search выполняет A* между клетками и возвращает подробный результат
func Search(t terrain.Query, start, goal vec.Vec3, maxExpansions int) Result {
	var res Result
	if maxExpansions <= 0 {
		return res
	}

	open := &openQueue{}
	heap.Init(open)

	var seq uint64
	push := func(cell vec.Vec3, g float64) {
		heap.Push(open, &node{cell: cell, g: g, f: g + float64(cell.Manhattan(goal)), seq: seq})
		seq++
	}

	gScore := map[vec.Vec3]float64{start: 0}
	cameFrom := make(map[vec.Vec3]vec.Vec3)
	closed := make(map[vec.Vec3]struct{})
	push(start, 0)

	for open.Len() > 0 && res.Expansions < maxExpansions {
		current := heap.Pop(open).(*node)
		if _, done := closed[current.cell]; done {
			continue
		}
		if best, ok := gScore[current.cell]; ok && current.g > best {
			continue
		}

		res.Expansions++
		if current.cell.Manhattan(goal) <= goalReached {
			res.Path = reconstruct(cameFrom, current.cell)
			res.Found = true
			return res
		}
		closed[current.cell] = struct{}{}

		for _, dir := range directions {
			next, cost, ok := neighbor(t, current.cell, dir)
			if !ok {
				continue
			}
			if _, done := closed[next]; done {
				continue
			}
			tentative := current.g + cost
			if prev, seen := gScore[next]; !seen || tentative < prev {
				gScore[next] = tentative
				cameFrom[next] = current.cell
				push(next, tentative)
			}
		}
	}
	return res
}

// neighbor проверяет переход из cell в соседнюю колонку dir.
// Варианты взаимоисключающие: ровный шаг, спуск на 1-2 уровня, подъём на блок.
func neighbor(t terrain.Query, cell, dir vec.Vec3) (vec.Vec3, float64, bool) {
	nx, nz := cell.X+dir.X, cell.Z+dir.Z
	y := cell.Y

	if !t.IsSolid(nx, y, nz) && !t.IsSolid(nx, y+1, nz) {
		if t.IsSolid(nx, y-1, nz) {
			return vec.Vec3{X: nx, Y: y, Z: nz}, CostFlat, true
		}
		// Спуск: пол ниже на один или два уровня
		if t.IsSolid(nx, y-2, nz) {
			return vec.Vec3{X: nx, Y: y - 1, Z: nz}, CostDrop1, true
		}
		if t.IsSolid(nx, y-3, nz) {
			return vec.Vec3{X: nx, Y: y - 2, Z: nz}, CostDrop2, true
		}
		return vec.Vec3{}, 0, false
	}

	// Подъём: блок на уровне ног, над ним два свободных, над текущей клеткой есть место для прыжка
	if t.IsSolid(nx, y, nz) &&
		!t.IsSolid(nx, y+1, nz) &&
		!t.IsSolid(nx, y+2, nz) &&
		!t.IsSolid(cell.X, y+2, cell.Z) {
		return vec.Vec3{X: nx, Y: y + 1, Z: nz}, CostStepUp, true
	}
	return vec.Vec3{}, 0, false
}

func reconstruct(cameFrom map[vec.Vec3]vec.Vec3, end vec.Vec3) []vec.Vec3 {
	path := []vec.Vec3{end}
	for {
		prev, ok := cameFrom[path[len(path)-1]]
		if !ok {
			break
		}
		path = append(path, prev)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
