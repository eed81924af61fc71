// Package spatial implements the engine's spatial index: a bounded-depth
// octree over (asset id, center, radius) tuples, used by the prefetch
// controller to find candidate assets around the camera.
//
// Nodes live in a single slice and reference children by index rather
// than by pointer.
package spatial

import (
	"math"
	"sync"

	"github.com/kestrel-engine/streamforge/internal/assetmodel"
)

// Point is a point (or vector) in world space.
type Point struct {
	X, Y, Z float64
}

func (p Point) Sub(o Point) Point { return Point{p.X - o.X, p.Y - o.Y, p.Z - o.Z} }

// DistanceTo returns the Euclidean distance between two points.
func (p Point) DistanceTo(o Point) float64 {
	d := p.Sub(o)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

const (
	maxPerNode    = 32
	maxDepth      = 6
	defaultExtent = 10_000.0 // ±10 km in meters
)

type entry struct {
	id     assetmodel.ID
	center Point
	radius float64
}

type node struct {
	center     Point
	halfExtent float64
	depth      int
	entries    []entry
	children   [8]int32 // -1 means no child (leaf)
}

func newLeaf(center Point, halfExtent float64, depth int) node {
	n := node{center: center, halfExtent: halfExtent, depth: depth}
	for i := range n.children {
		n.children[i] = -1
	}
	return n
}

func (n *node) isLeaf() bool { return n.children[0] == -1 }

// Index is a bounded-depth octree over a fixed world cube.
type Index struct {
	mu    sync.RWMutex
	nodes []node
}

// NewIndex creates an index covering a world cube of the given half
// extent, centered on the origin. A zero or negative extent uses the
// default of ±10 km.
func NewIndex(halfExtent float64) *Index {
	if halfExtent <= 0 {
		halfExtent = defaultExtent
	}
	idx := &Index{}
	idx.nodes = append(idx.nodes, newLeaf(Point{}, halfExtent, 0))
	return idx
}

// Insert places id into every leaf whose AABB intersects the bounding
// sphere (center, radius), subdividing overflowing leaves below maxDepth.
func (idx *Index) Insert(id assetmodel.ID, center Point, radius float64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insert(0, id, center, radius)
}

func (idx *Index) insert(nodeIdx int32, id assetmodel.ID, center Point, radius float64) {
	n := &idx.nodes[nodeIdx]
	if !sphereIntersectsAABB(center, radius, n.center, n.halfExtent) {
		return
	}

	if !n.isLeaf() {
		children := n.children
		for _, c := range children {
			idx.insert(c, id, center, radius)
		}
		return
	}

	n.entries = append(n.entries, entry{id: id, center: center, radius: radius})

	if len(n.entries) > maxPerNode && n.depth < maxDepth {
		idx.subdivide(nodeIdx)
	}
}

func (idx *Index) subdivide(nodeIdx int32) {
	n := idx.nodes[nodeIdx]
	childHalf := n.halfExtent / 2
	offsets := [8]Point{
		{-1, -1, -1}, {1, -1, -1}, {-1, 1, -1}, {1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {-1, 1, 1}, {1, 1, 1},
	}

	var childIdx [8]int32
	for i, off := range offsets {
		childCenter := Point{
			X: n.center.X + off.X*childHalf,
			Y: n.center.Y + off.Y*childHalf,
			Z: n.center.Z + off.Z*childHalf,
		}
		idx.nodes = append(idx.nodes, newLeaf(childCenter, childHalf, n.depth+1))
		childIdx[i] = int32(len(idx.nodes) - 1)
	}

	entries := n.entries
	idx.nodes[nodeIdx].entries = nil
	idx.nodes[nodeIdx].children = childIdx

	for _, e := range entries {
		for _, c := range childIdx {
			idx.insert(c, e.id, e.center, e.radius)
		}
	}
}

// QueryRadius appends ids of every asset whose bounding sphere may
// intersect the query sphere (center, radius) into out, up to max
// entries, and returns the (possibly duplicate-containing) result. An id
// can appear more than once if it was inserted into multiple leaves;
// callers needing uniqueness deduplicate themselves.
func (idx *Index) QueryRadius(center Point, radius float64, max int) []assetmodel.ID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]assetmodel.ID, 0, min(max, 64))
	idx.query(0, center, radius, max, &out)
	return out
}

func (idx *Index) query(nodeIdx int32, center Point, radius float64, max int, out *[]assetmodel.ID) {
	if len(*out) >= max {
		return
	}
	n := &idx.nodes[nodeIdx]
	if aabbToSphereDistance(center, n.center, n.halfExtent) > radius {
		return
	}

	if n.isLeaf() {
		for _, e := range n.entries {
			if len(*out) >= max {
				return
			}
			if e.center.DistanceTo(center) > radius+e.radius {
				continue
			}
			*out = append(*out, e.id)
		}
		return
	}

	for _, c := range n.children {
		idx.query(c, center, radius, max, out)
	}
}

// sphereIntersectsAABB reports whether a sphere (center, radius)
// intersects the cube centered at aabbCenter with half-extent
// aabbHalfExtent.
func sphereIntersectsAABB(center Point, radius float64, aabbCenter Point, aabbHalfExtent float64) bool {
	return aabbToSphereDistance(center, aabbCenter, aabbHalfExtent) <= radius
}

// aabbToSphereDistance returns the closest distance between a point and
// the surface of a cube, clamped to zero if the point is inside it.
func aabbToSphereDistance(p Point, aabbCenter Point, halfExtent float64) float64 {
	dx := math.Max(math.Abs(p.X-aabbCenter.X)-halfExtent, 0)
	dy := math.Max(math.Abs(p.Y-aabbCenter.Y)-halfExtent, 0)
	dz := math.Max(math.Abs(p.Z-aabbCenter.Z)-halfExtent, 0)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
