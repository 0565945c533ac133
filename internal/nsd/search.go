package nsd

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Strategy selects the nearest-neighbour implementation used by the
// fineness and distance routines.
type Strategy int

const (
	// StrategyAuto picks the grid index for clouds large enough to
	// amortise the build cost, brute force otherwise.
	StrategyAuto Strategy = iota
	// StrategyGrid always uses the uniform-grid spatial index.
	StrategyGrid
	// StrategyBruteForce always uses the all-pairs scan.
	StrategyBruteForce
)

// gridThreshold is the cloud size above which StrategyAuto switches from
// brute force to the grid index.
const gridThreshold = 64

// Searcher answers exact nearest-neighbour queries against a fixed point
// cloud. Implementations must be interchangeable: for any query they return
// the same index (or an index at an equal distance) and the same squared
// distance within floating-point tolerance.
type Searcher interface {
	// Nearest returns the index of the cloud point closest to q and the
	// squared Euclidean distance to it. exclude names a point index to
	// skip, used for self-queries; pass -1 to consider every point.
	// If the cloud holds no eligible point, Nearest returns (-1, +Inf).
	Nearest(q r3.Vec, exclude int) (int, float64)
}

// NewSearcher builds a Searcher over pts using the given strategy.
func NewSearcher(pts []r3.Vec, s Strategy) Searcher {
	switch s {
	case StrategyGrid:
		return NewGridIndex(pts)
	case StrategyBruteForce:
		return BruteForce(pts)
	default:
		if len(pts) >= gridThreshold {
			return NewGridIndex(pts)
		}
		return BruteForce(pts)
	}
}

// BruteForce is the reference nearest-neighbour implementation: a linear
// scan over the whole cloud.
type BruteForce []r3.Vec

// Nearest implements Searcher.
func (b BruteForce) Nearest(q r3.Vec, exclude int) (int, float64) {
	best := -1
	bestD2 := math.Inf(1)
	for i, p := range b {
		if i == exclude {
			continue
		}
		d := r3.Sub(q, p)
		d2 := r3.Dot(d, d)
		if d2 < bestD2 {
			best = i
			bestD2 = d2
		}
	}
	return best, bestD2
}

// cellKey identifies one cell of the uniform grid.
type cellKey struct {
	x, y, z int32
}

// GridIndex accelerates nearest-neighbour queries with a uniform 3D grid.
// Queries scan cells in expanding Chebyshev shells around the query point
// and stop once no unvisited shell can hold a closer point, so results are
// exact and match BruteForce.
type GridIndex struct {
	cellSize float64
	cells    map[cellKey][]int32
	pts      []r3.Vec
	// minCell and maxCell bound the occupied cells; shell expansion stops
	// once a query has covered this box.
	minCell, maxCell cellKey
}

// NewGridIndex builds a grid index over pts. The cell size is derived from
// the bounding box so that cells hold a handful of points each.
func NewGridIndex(pts []r3.Vec) *GridIndex {
	g := &GridIndex{pts: pts}
	g.cellSize = pickCellSize(pts)
	g.cells = make(map[cellKey][]int32, len(pts)/4+1)

	for i, p := range pts {
		k := g.cellOf(p)
		g.cells[k] = append(g.cells[k], int32(i))
		if i == 0 {
			g.minCell, g.maxCell = k, k
			continue
		}
		g.minCell = cellKey{min32(g.minCell.x, k.x), min32(g.minCell.y, k.y), min32(g.minCell.z, k.z)}
		g.maxCell = cellKey{max32(g.maxCell.x, k.x), max32(g.maxCell.y, k.y), max32(g.maxCell.z, k.z)}
	}
	return g
}

// pickCellSize aims for roughly one point per cell along the bounding-box
// diagonal. Degenerate clouds (all points coincident) get a unit cell.
func pickCellSize(pts []r3.Vec) float64 {
	if len(pts) == 0 {
		return 1
	}
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	d := r3.Sub(hi, lo)
	diag := math.Sqrt(r3.Dot(d, d))
	if diag == 0 || math.IsNaN(diag) {
		return 1
	}
	return diag / math.Cbrt(float64(len(pts)))
}

func (g *GridIndex) cellOf(p r3.Vec) cellKey {
	return cellKey{
		x: int32(math.Floor(p.X / g.cellSize)),
		y: int32(math.Floor(p.Y / g.cellSize)),
		z: int32(math.Floor(p.Z / g.cellSize)),
	}
}

// Nearest implements Searcher.
func (g *GridIndex) Nearest(q r3.Vec, exclude int) (int, float64) {
	center := g.cellOf(q)
	best := -1
	bestD2 := math.Inf(1)

	// Shells past lastShell lie entirely outside the occupied box, so the
	// expansion always terminates even for queries far from the cloud.
	lastShell := max32(chebDist(center.x, g.minCell.x, g.maxCell.x),
		max32(chebDist(center.y, g.minCell.y, g.maxCell.y),
			chebDist(center.z, g.minCell.z, g.maxCell.z)))

	for r := int32(0); r <= lastShell; r++ {
		g.scanShell(center, r, q, exclude, &best, &bestD2)

		if best >= 0 {
			// Points in shells beyond r are at least r*cellSize away.
			bound := float64(r) * g.cellSize
			if bound*bound >= bestD2 {
				break
			}
		}
	}
	return best, bestD2
}

// chebDist is the largest cell count from c to either end of [lo, hi].
func chebDist(c, lo, hi int32) int32 {
	d := c - lo
	if h := hi - c; h > d {
		d = h
	}
	if d < 0 {
		return 0
	}
	return d
}

// scanShell visits every cell at Chebyshev distance r from center and
// updates the running best match.
func (g *GridIndex) scanShell(center cellKey, r int32, q r3.Vec, exclude int, best *int, bestD2 *float64) {
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				if max32(abs32(dx), max32(abs32(dy), abs32(dz))) != r {
					continue
				}
				k := cellKey{center.x + dx, center.y + dy, center.z + dz}
				for _, idx := range g.cells[k] {
					if int(idx) == exclude {
						continue
					}
					d := r3.Sub(q, g.pts[idx])
					d2 := r3.Dot(d, d)
					if d2 < *bestD2 {
						*best = int(idx)
						*bestD2 = d2
					}
				}
			}
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
