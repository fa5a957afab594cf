package sindex

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/pkg/errors"
)

// Branching factors for the underlying R-tree.
const (
	minBranch = 25
	maxBranch = 50
)

// Item is a single index entry as returned by the item-variants of the query
// methods. The BBox values follow the ordering convention of the index at the
// time of the call (see the Interleaved flag).
type Item struct {
	ID   int64
	BBox []float64
}

// SpatialIndex is a thin wrapper around an R-tree. It stores bounding boxes
// together with an integer id and answers intersection and nearest-neighbor
// queries. All tree construction, node splitting and traversal is done by
// github.com/dhconnelly/rtreego, this wrapper only translates between flat
// bounds slices and the tree's rectangle type.
type SpatialIndex struct {
	// Interleaved controls how flat bounds slices are interpreted (and how
	// they are rendered in returned Items). When true (the default), the
	// order is xmin, ymin, ..., kmin, xmax, ymax, ..., kmax for a
	// k-dimensional index. When false, the order is min/max pairs per axis:
	// xmin, xmax, ymin, ymax, ..., kmin, kmax. Bounds are stored in a
	// canonical form internally, so the flag may be changed between calls.
	Interleaved bool

	dim     int
	tree    *rtreego.Rtree
	entries []*entry
}

type entry struct {
	id   int64
	mins []float64
	maxs []float64
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// New creates an empty two-dimensional spatial index.
func New() *SpatialIndex {
	index, err := NewWithDimension(2)
	if err != nil {
		// Cannot happen for dimension 2.
		panic(err)
	}
	return index
}

// NewWithDimension creates an empty spatial index for boxes with the given
// number of dimensions, which must be at least 2.
func NewWithDimension(dim int) (*SpatialIndex, error) {
	if dim < 2 {
		return nil, errors.Errorf("Invalid dimension %d for spatial index, expected at least 2", dim)
	}

	return &SpatialIndex{
		Interleaved: true,
		dim:         dim,
		tree:        rtreego.NewTree(dim, minBranch, maxBranch),
	}, nil
}

// Dimension returns the number of dimensions of the indexed boxes.
func (s *SpatialIndex) Dimension() int {
	return s.dim
}

// Size returns the number of entries in the index.
func (s *SpatialIndex) Size() int {
	return len(s.entries)
}

// Insert adds the given bounding box under the given id. Ids do not need to
// be unique, the index happily stores multiple boxes with the same id. The
// bounds slice must contain two values per dimension in the order determined
// by the Interleaved flag. A slice with only one value per dimension is
// accepted as well and treated as a point.
func (s *SpatialIndex) Insert(id int64, bounds []float64) error {
	mins, maxs, err := s.parseBounds(bounds)
	if err != nil {
		return err
	}

	rect, err := rtreego.NewRectFromPoints(toPoint(mins), toPoint(maxs))
	if err != nil {
		return errors.Wrapf(err, "Unable to create rectangle for bounds %v", bounds)
	}

	e := &entry{
		id:   id,
		mins: mins,
		maxs: maxs,
		rect: rect,
	}
	s.tree.Insert(e)
	s.entries = append(s.entries, e)

	return nil
}

// Delete removes one entry matching the given id and bounds from the index.
// It returns whether such an entry existed.
func (s *SpatialIndex) Delete(id int64, bounds []float64) (bool, error) {
	mins, maxs, err := s.parseBounds(bounds)
	if err != nil {
		return false, err
	}

	for i, e := range s.entries {
		if e.id != id || !equalCoords(e.mins, mins) || !equalCoords(e.maxs, maxs) {
			continue
		}

		if !s.tree.Delete(e) {
			return false, errors.Errorf("Index is inconsistent: entry %d with bounds %v is unknown to the underlying tree", id, bounds)
		}
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		return true, nil
	}

	return false, nil
}

// Intersection returns the ids of all entries whose box intersects the given
// query box. Touching boundaries count as an intersection. The result is
// sorted by id.
func (s *SpatialIndex) Intersection(bounds []float64) ([]int64, error) {
	hits, err := s.intersecting(bounds)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(hits))
	for _, e := range hits {
		ids = append(ids, e.id)
	}
	return ids, nil
}

// IntersectionItems behaves like Intersection but returns the id together
// with the bounding box of each matching entry.
func (s *SpatialIndex) IntersectionItems(bounds []float64) ([]Item, error) {
	hits, err := s.intersecting(bounds)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(hits))
	for _, e := range hits {
		items = append(items, s.toItem(e))
	}
	return items, nil
}

// Nearest returns the ids of the k entries closest to the given query box,
// measured as the minimal euclidean distance between the boxes. Entries
// intersecting the query box have distance 0. When several entries are tied
// at the cut-off distance, all of them are returned, so the result may
// contain more than k ids.
func (s *SpatialIndex) Nearest(bounds []float64, k int) ([]int64, error) {
	hits, err := s.nearestEntries(bounds, k)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(hits))
	for _, e := range hits {
		ids = append(ids, e.id)
	}
	return ids, nil
}

// NearestItems behaves like Nearest but returns the id together with the
// bounding box of each entry.
func (s *SpatialIndex) NearestItems(bounds []float64, k int) ([]Item, error) {
	hits, err := s.nearestEntries(bounds, k)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(hits))
	for _, e := range hits {
		items = append(items, s.toItem(e))
	}
	return items, nil
}

// Bounds returns the overall extent of all entries in the ordering determined
// by the Interleaved flag. It returns nil for an empty index.
func (s *SpatialIndex) Bounds() []float64 {
	if len(s.entries) == 0 {
		return nil
	}

	mins, maxs := s.totalBounds()
	return s.formatBounds(mins, maxs)
}

func (s *SpatialIndex) intersecting(bounds []float64) ([]*entry, error) {
	mins, maxs, err := s.parseBounds(bounds)
	if err != nil {
		return nil, err
	}

	hits, err := s.search(mins, maxs)
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].id < hits[j].id })
	return hits, nil
}

// search returns all entries whose box intersects the given window, touching
// boundaries included. The tree's SearchIntersect treats touching boxes as
// disjoint, so the tree is queried with a window widened by one ULP per side
// and the candidates are filtered against the exact stored bounds.
func (s *SpatialIndex) search(mins []float64, maxs []float64) ([]*entry, error) {
	wmins := make([]float64, s.dim)
	wmaxs := make([]float64, s.dim)
	for i := 0; i < s.dim; i++ {
		wmins[i] = math.Nextafter(mins[i], math.Inf(-1))
		wmaxs[i] = math.Nextafter(maxs[i], math.Inf(1))
	}

	rect, err := rtreego.NewRectFromPoints(toPoint(wmins), toPoint(wmaxs))
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to create query rectangle for bounds %v %v", mins, maxs)
	}

	spatials := s.tree.SearchIntersect(rect)
	hits := make([]*entry, 0, len(spatials))
	for _, spatial := range spatials {
		e := spatial.(*entry)
		if intersects(mins, maxs, e.mins, e.maxs) {
			hits = append(hits, e)
		}
	}
	return hits, nil
}

// intersects is the inclusive overlap test of the box boundaries.
func intersects(amins []float64, amaxs []float64, bmins []float64, bmaxs []float64) bool {
	for i := range amins {
		if bmins[i] > amaxs[i] || amins[i] > bmaxs[i] {
			return false
		}
	}
	return true
}

func (s *SpatialIndex) nearestEntries(bounds []float64, k int) ([]*entry, error) {
	if k < 1 {
		return nil, errors.Errorf("Invalid number of neighbors %d, expected at least 1", k)
	}

	mins, maxs, err := s.parseBounds(bounds)
	if err != nil {
		return nil, err
	}
	if len(s.entries) == 0 {
		return nil, nil
	}

	totalMins, totalMaxs := s.totalBounds()

	// Grow a search window around the query box until it either contains
	// enough candidates or covers the whole index. The candidate search
	// itself is delegated to the tree.
	radius := 0.0
	for i := 0; i < s.dim; i++ {
		radius = math.Max(radius, maxs[i]-mins[i])
	}
	if radius == 0 {
		radius = 1
	}

	var candidates []*entry
	for {
		wmins, wmaxs := inflate(mins, maxs, radius)
		candidates, err = s.search(wmins, wmaxs)
		if err != nil {
			return nil, err
		}
		if len(candidates) >= k || covers(wmins, wmaxs, totalMins, totalMaxs) {
			break
		}
		radius *= 2
	}

	byDistance := func(hits []*entry) {
		sort.Slice(hits, func(i, j int) bool {
			di := boxDistance(mins, maxs, hits[i].mins, hits[i].maxs)
			dj := boxDistance(mins, maxs, hits[j].mins, hits[j].maxs)
			if di != dj {
				return di < dj
			}
			return hits[i].id < hits[j].id
		})
	}
	byDistance(candidates)
	if len(candidates) == 0 {
		return nil, nil
	}

	// The k-th candidate distance is an upper bound on the true k-th nearest
	// distance. A window of that size contains every entry at least as close,
	// including any the first window missed.
	limit := k
	if limit > len(candidates) {
		limit = len(candidates)
	}
	bound := boxDistance(mins, maxs, candidates[limit-1].mins, candidates[limit-1].maxs)
	wmins, wmaxs := inflate(mins, maxs, bound)
	candidates, err = s.search(wmins, wmaxs)
	if err != nil {
		return nil, err
	}
	byDistance(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	cutoff := boxDistance(mins, maxs, candidates[limit-1].mins, candidates[limit-1].maxs)

	result := candidates[:limit]
	for _, e := range candidates[limit:] {
		if boxDistance(mins, maxs, e.mins, e.maxs) > cutoff {
			break
		}
		result = append(result, e)
	}
	return result, nil
}

// parseBounds turns a flat bounds slice into canonical min and max
// coordinates per dimension. Accepts 2*dim values in the configured ordering
// or dim values for a point.
func (s *SpatialIndex) parseBounds(bounds []float64) ([]float64, []float64, error) {
	for _, value := range bounds {
		if math.IsNaN(value) {
			return nil, nil, errors.Errorf("Bounds %v contain NaN", bounds)
		}
	}

	mins := make([]float64, s.dim)
	maxs := make([]float64, s.dim)

	switch len(bounds) {
	case s.dim:
		copy(mins, bounds)
		copy(maxs, bounds)
		return mins, maxs, nil
	case 2 * s.dim:
		for i := 0; i < s.dim; i++ {
			if s.Interleaved {
				mins[i] = bounds[i]
				maxs[i] = bounds[s.dim+i]
			} else {
				mins[i] = bounds[2*i]
				maxs[i] = bounds[2*i+1]
			}
			if mins[i] > maxs[i] {
				return nil, nil, errors.Errorf("Invalid bounds %v: minimum %f is larger than maximum %f in dimension %d", bounds, mins[i], maxs[i], i)
			}
		}
		return mins, maxs, nil
	}

	return nil, nil, errors.Errorf("Expected %d (or %d for a point) bounds values for a %d-dimensional index but got %d", 2*s.dim, s.dim, s.dim, len(bounds))
}

// formatBounds is the inverse of parseBounds.
func (s *SpatialIndex) formatBounds(mins []float64, maxs []float64) []float64 {
	bounds := make([]float64, 2*s.dim)
	for i := 0; i < s.dim; i++ {
		if s.Interleaved {
			bounds[i] = mins[i]
			bounds[s.dim+i] = maxs[i]
		} else {
			bounds[2*i] = mins[i]
			bounds[2*i+1] = maxs[i]
		}
	}
	return bounds
}

func (s *SpatialIndex) toItem(e *entry) Item {
	return Item{
		ID:   e.id,
		BBox: s.formatBounds(e.mins, e.maxs),
	}
}

func (s *SpatialIndex) totalBounds() ([]float64, []float64) {
	mins := make([]float64, s.dim)
	maxs := make([]float64, s.dim)
	copy(mins, s.entries[0].mins)
	copy(maxs, s.entries[0].maxs)

	for _, e := range s.entries[1:] {
		for i := 0; i < s.dim; i++ {
			mins[i] = math.Min(mins[i], e.mins[i])
			maxs[i] = math.Max(maxs[i], e.maxs[i])
		}
	}
	return mins, maxs
}

// boxDistance is the minimal euclidean distance between two boxes. It is 0
// for intersecting boxes.
func boxDistance(amins []float64, amaxs []float64, bmins []float64, bmaxs []float64) float64 {
	sum := 0.0
	for i := range amins {
		gap := math.Max(bmins[i]-amaxs[i], amins[i]-bmaxs[i])
		if gap > 0 {
			sum += gap * gap
		}
	}
	return math.Sqrt(sum)
}

func inflate(mins []float64, maxs []float64, radius float64) ([]float64, []float64) {
	wmins := make([]float64, len(mins))
	wmaxs := make([]float64, len(maxs))
	for i := range mins {
		wmins[i] = mins[i] - radius
		wmaxs[i] = maxs[i] + radius
	}
	return wmins, wmaxs
}

func covers(mins []float64, maxs []float64, innerMins []float64, innerMaxs []float64) bool {
	for i := range mins {
		if mins[i] > innerMins[i] || maxs[i] < innerMaxs[i] {
			return false
		}
	}
	return true
}

func equalCoords(a []float64, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toPoint(coords []float64) rtreego.Point {
	point := make(rtreego.Point, len(coords))
	copy(point, coords)
	return point
}
