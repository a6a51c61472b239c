package pathfind

import "github.com/annel0/voxel-creatures/internal/vec"

// node - элемент открытого списка
type node struct {
	cell  vec.Vec3
	g     float64
	f     float64
	seq   uint64 // Порядок добавления, разрешает равенство f
	index int
}

// openQueue - приоритетная очередь для container/heap
type openQueue []*node

func (q openQueue) Len() int { return len(q) }

func (q openQueue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq < q[j].seq
}

func (q openQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *openQueue) Push(x interface{}) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *openQueue) Pop() interface{} {
	old := *q
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*q = old[:last]
	return n
}
