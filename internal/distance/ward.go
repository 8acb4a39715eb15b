package distance

import (
	"fmt"
	"math"
)

// Merge joins two nodes. Leaves are 0..n-1; the node created by merge s is n+s.
type Merge struct {
	Left   int     `json:"left"`
	Right  int     `json:"right"`
	Height float64 `json:"height"`
	Size   int     `json:"size"`
}

// Dendrogram is a binary merge tree over n labelled rows.
type Dendrogram struct {
	Labels []string `json:"labels"`
	Merges []Merge  `json:"merges"`
}

// Ward clusters with Ward's minimum-variance criterion (ward.D2): the Lance-Williams
// update runs on squared dissimilarities and heights are reported on the original
// scale. Ties go to the lowest index pair, so the tree is a function of dm alone.
func Ward(dm *Matrix, labels []string) (*Dendrogram, error) {
	n := dm.N
	if len(labels) != n {
		return nil, fmt.Errorf("distance.Ward: %d labels for %d rows", len(labels), n)
	}
	if n < 2 {
		return nil, fmt.Errorf("distance.Ward: need at least 2 rows, got %d", n)
	}
	d2 := make([][]float64, n)
	for i := range d2 {
		d2[i] = make([]float64, n)
		for j := range d2[i] {
			x := dm.At(i, j)
			d2[i][j] = x * x
		}
	}
	node := make([]int, n) // slot -> current node id
	size := make([]int, n)
	active := make([]bool, n)
	for i := range node {
		node[i], size[i], active[i] = i, 1, true
	}

	dg := &Dendrogram{Labels: append([]string(nil), labels...), Merges: make([]Merge, 0, n-1)}
	for step := 0; step < n-1; step++ {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d2[i][j] < best {
					bi, bj, best = i, j, d2[i][j]
				}
			}
		}
		ni, nj := float64(size[bi]), float64(size[bj])
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			nk := float64(size[k])
			v := ((ni+nk)*d2[bi][k] + (nj+nk)*d2[bj][k] - nk*best) / (ni + nj + nk)
			d2[bi][k], d2[k][bi] = v, v
		}
		// slot bi holds the cluster with the smaller first leaf; it goes left
		dg.Merges = append(dg.Merges, Merge{Left: node[bi], Right: node[bj], Height: math.Sqrt(best), Size: size[bi] + size[bj]})
		node[bi] = n + step
		size[bi] += size[bj]
		active[bj] = false
	}
	return dg, nil
}

// Len is the number of leaves.
func (d *Dendrogram) Len() int { return len(d.Labels) }

// Order returns the leaf indices in left-to-right plotting order.
func (d *Dendrogram) Order() []int {
	n := d.Len()
	out := make([]int, 0, n)
	var walk func(id int)
	walk = func(id int) {
		if id < n {
			out = append(out, id)
			return
		}
		m := d.Merges[id-n]
		walk(m.Left)
		walk(m.Right)
	}
	walk(n + len(d.Merges) - 1)
	return out
}

// Cut assigns every leaf to one of k clusters, numbered 1..k in order of each
// cluster's first leaf.
func (d *Dendrogram) Cut(k int) ([]int, error) {
	n := d.Len()
	if k < 1 || k > n {
		return nil, fmt.Errorf("distance: cut into %d clusters of %d leaves", k, n)
	}
	parent := make([]int, n+len(d.Merges))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for s := 0; s < n-k; s++ {
		m := d.Merges[s]
		parent[find(m.Left)] = n + s
		parent[find(m.Right)] = n + s
	}
	out := make([]int, n)
	number := map[int]int{}
	for i := 0; i < n; i++ {
		r := find(i)
		c, ok := number[r]
		if !ok {
			c = len(number) + 1
			number[r] = c
		}
		out[i] = c
	}
	return out, nil
}
