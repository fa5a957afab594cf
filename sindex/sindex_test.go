package sindex

import (
	"geoframe/util"
	"testing"
)

func sampleIndex(t *testing.T) *SpatialIndex {
	index := New()

	util.AssertNil(t, index.Insert(2321, []float64{0.0, 0.0, 1.0, 1.0}))
	util.AssertNil(t, index.Insert(2343, []float64{20.0, 20.0, 30.0, 30.0}))
	util.AssertNil(t, index.Insert(4351, []float64{0.0, 0.0, 10.0, 10.0}))
	util.AssertNil(t, index.Insert(4212, []float64{5.0, 5.0, 7.0, 7.0}))

	return index
}

func TestSpatialIndex_intersection(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act
	ids, err := index.Intersection([]float64{0, 0, 6, 6})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{2321, 4212, 4351}, ids)
}

func TestSpatialIndex_intersectionItems(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act
	items, err := index.IntersectionItems([]float64{0, 0, 6, 6})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 3, len(items))
	if len(items) != 3 {
		return
	}
	util.AssertEqual(t, Item{ID: 2321, BBox: []float64{0, 0, 1, 1}}, items[0])
	util.AssertEqual(t, Item{ID: 4212, BBox: []float64{5, 5, 7, 7}}, items[1])
	util.AssertEqual(t, Item{ID: 4351, BBox: []float64{0, 0, 10, 10}}, items[2])
}

func TestSpatialIndex_intersectionTouchingBoundaryCounts(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(1, []float64{0, 0, 1, 1}))

	// Act
	ids, err := index.Intersection([]float64{1, 1, 2, 2})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{1}, ids)
}

func TestSpatialIndex_intersectionPointOnBoundary(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(1, []float64{1, 1}))
	util.AssertNil(t, index.Insert(2, []float64{0.5, 0.5}))
	util.AssertNil(t, index.Insert(3, []float64{2, 2}))

	// Act: point 1 sits exactly on the corner of the query box.
	ids, err := index.Intersection([]float64{0, 0, 1, 1})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{1, 2}, ids)
}

func TestSpatialIndex_intersectionWithPointQueryOnCorner(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(1, []float64{0, 0, 1, 1}))
	util.AssertNil(t, index.Insert(2, []float64{1, 1, 2, 2}))

	// Act: the query point is the shared corner of both boxes.
	ids, err := index.Intersection([]float64{1, 1})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{1, 2}, ids)
}

func TestSpatialIndex_intersectionEmptyResult(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act
	ids, err := index.Intersection([]float64{100, 100, 101, 101})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 0, len(ids))
}

func TestSpatialIndex_interleavedOrderingsAreEquivalent(t *testing.T) {
	// Arrange
	interleaved := New()
	util.AssertNil(t, interleaved.Insert(2321, []float64{0.0, 0.0, 1.0, 1.0}))

	nonInterleaved := New()
	nonInterleaved.Interleaved = false
	util.AssertNil(t, nonInterleaved.Insert(2321, []float64{0.0, 1.0, 0.0, 1.0}))

	// Act
	idsA, errA := interleaved.Intersection([]float64{0, 0, 2, 2})
	nonInterleaved.Interleaved = true
	idsB, errB := nonInterleaved.Intersection([]float64{0, 0, 2, 2})

	// Assert
	util.AssertNil(t, errA)
	util.AssertNil(t, errB)
	util.AssertEqual(t, idsA, idsB)
}

func TestSpatialIndex_itemBoundsFollowOrderingFlag(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(7, []float64{1, 2, 3, 4}))

	// Act
	index.Interleaved = false
	items, err := index.IntersectionItems([]float64{0, 10, 0, 10})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 1, len(items))
	if len(items) != 1 {
		return
	}
	util.AssertEqual(t, []float64{1, 3, 2, 4}, items[0].BBox)
}

func TestSpatialIndex_nearest(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act
	ids, err := index.Nearest([]float64{1.0, 1.0, 2.0, 2.0}, 2)

	// Assert
	util.AssertNil(t, err)
	// Box (1,1)-(2,2) touches box 2321 and lies inside box 4351, both at
	// distance 0.
	util.AssertEqual(t, []int64{2321, 4351}, ids)
}

func TestSpatialIndex_nearestReturnsTies(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(1, []float64{10, 0, 11, 1}))
	util.AssertNil(t, index.Insert(2, []float64{-11, 0, -10, 1}))
	util.AssertNil(t, index.Insert(3, []float64{0, 10, 1, 11}))

	// Act: both 1 and 2 are 9.5 away from the query box, 3 is closer.
	ids, err := index.Nearest([]float64{-0.5, 0, 0.5, 1}, 2)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{3, 1, 2}, ids)
}

func TestSpatialIndex_nearestKeepsEntriesAtCutoffDistance(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(1, []float64{3, 0, 4, 1}))
	util.AssertNil(t, index.Insert(2, []float64{9, 0, 10, 1}))
	util.AssertNil(t, index.Insert(3, []float64{50, 50, 51, 51}))

	// Act: entry 2 lies exactly at the refined search distance of 8.
	ids, err := index.Nearest([]float64{0, 0, 1, 1}, 2)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{1, 2}, ids)
}

func TestSpatialIndex_nearestMoreNeighborsThanEntries(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(1, []float64{0, 0, 1, 1}))

	// Act
	ids, err := index.Nearest([]float64{5, 5, 6, 6}, 3)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{1}, ids)
}

func TestSpatialIndex_nearestItems(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act
	items, err := index.NearestItems([]float64{1.0, 1.0, 2.0, 2.0}, 2)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 2, len(items))
	if len(items) != 2 {
		return
	}
	util.AssertEqual(t, Item{ID: 2321, BBox: []float64{0, 0, 1, 1}}, items[0])
	util.AssertEqual(t, Item{ID: 4351, BBox: []float64{0, 0, 10, 10}}, items[1])
}

func TestSpatialIndex_nearestOnDistantBox(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act: far away from all entries, forcing the search window to grow.
	ids, err := index.Nearest([]float64{1000, 1000, 1001, 1001}, 1)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{2343}, ids)
}

func TestSpatialIndex_nearestOnEmptyIndex(t *testing.T) {
	// Arrange
	index := New()

	// Act
	ids, err := index.Nearest([]float64{0, 0, 1, 1}, 2)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 0, len(ids))
}

func TestSpatialIndex_pointBounds(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(1, []float64{5, 5}))

	// Act
	ids, err := index.Intersection([]float64{4, 4, 6, 6})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{1}, ids)
}

func TestSpatialIndex_delete(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act
	deleted, err := index.Delete(4212, []float64{5.0, 5.0, 7.0, 7.0})

	// Assert
	util.AssertNil(t, err)
	util.AssertTrue(t, deleted)
	util.AssertEqual(t, 3, index.Size())

	ids, err := index.Intersection([]float64{0, 0, 6, 6})
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{2321, 4351}, ids)
}

func TestSpatialIndex_deleteUnknownEntry(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act
	deleted, err := index.Delete(9999, []float64{0, 0, 1, 1})

	// Assert
	util.AssertNil(t, err)
	util.AssertFalse(t, deleted)
	util.AssertEqual(t, 4, index.Size())
}

func TestSpatialIndex_bounds(t *testing.T) {
	// Arrange
	index := sampleIndex(t)

	// Act & Assert
	util.AssertEqual(t, []float64{0, 0, 30, 30}, index.Bounds())

	index.Interleaved = false
	util.AssertEqual(t, []float64{0, 30, 0, 30}, index.Bounds())
}

func TestSpatialIndex_boundsOnEmptyIndex(t *testing.T) {
	// Arrange
	index := New()

	// Act & Assert
	util.AssertEqual(t, []float64(nil), index.Bounds())
}

func TestSpatialIndex_higherDimension(t *testing.T) {
	// Arrange
	index, err := NewWithDimension(3)
	util.AssertNil(t, err)
	util.AssertNil(t, index.Insert(1, []float64{0, 0, 0, 1, 1, 1}))
	util.AssertNil(t, index.Insert(2, []float64{5, 5, 5, 6, 6, 6}))

	// Act
	ids, err := index.Intersection([]float64{0, 0, 0, 2, 2, 2})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{1}, ids)
}

func TestSpatialIndex_invalidDimension(t *testing.T) {
	// Act
	index, err := NewWithDimension(1)

	// Assert
	util.AssertNotNil(t, err)
	util.AssertTrue(t, index == nil)
}

func TestSpatialIndex_invalidBounds(t *testing.T) {
	// Arrange
	index := New()

	// Act & Assert
	util.AssertNotNil(t, index.Insert(1, []float64{0, 0, 1}))
	util.AssertNotNil(t, index.Insert(1, []float64{2, 2, 1, 1}))

	_, err := index.Intersection([]float64{0, 0, 1, 1, 1})
	util.AssertNotNil(t, err)

	_, err = index.Nearest([]float64{0, 0, 1, 1}, 0)
	util.AssertNotNil(t, err)
}

func TestSpatialIndex_duplicateIds(t *testing.T) {
	// Arrange
	index := New()
	util.AssertNil(t, index.Insert(42, []float64{0, 0, 1, 1}))
	util.AssertNil(t, index.Insert(42, []float64{2, 2, 3, 3}))

	// Act
	ids, err := index.Intersection([]float64{0, 0, 5, 5})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []int64{42, 42}, ids)
}
