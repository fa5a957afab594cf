package storage

import (
	"context"
	"path"
	"testing"

	"geoframe/frame"
	"geoframe/util"

	"github.com/paulmach/orb"
)

func testStore(t *testing.T) *Store {
	store, err := Open(path.Join(t.TempDir(), "test.db"))
	util.AssertNil(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testFrame(t *testing.T) *frame.GeoFrame {
	f, err := frame.FromColumns(
		map[string][]any{"Name": {"a", "b", nil}},
		[]orb.Geometry{
			orb.Point{1, 2},
			orb.Point{3, 4},
			orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		},
		"Coordinates",
	)
	util.AssertNil(t, err)
	return f
}

func TestStore_saveAndLoad(t *testing.T) {
	// Arrange
	store := testStore(t)
	f := testFrame(t)
	ctx := context.Background()

	// Act
	err := store.SaveFrame(ctx, "places", f)
	util.AssertNil(t, err)
	loaded, err := store.LoadFrame(ctx, "places")

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 3, loaded.Len())
	util.AssertEqual(t, []string{"Name", "Coordinates"}, loaded.Columns())
	util.AssertEqual(t, "Coordinates", loaded.GeometryColumn())

	names, err := loaded.Column("Name")
	util.AssertNil(t, err)
	util.AssertEqual(t, []any{"a", "b", nil}, names)

	geometry, err := loaded.Geometry(2)
	util.AssertNil(t, err)
	util.AssertEqual(t, orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}, geometry)
}

func TestStore_saveReplacesDataset(t *testing.T) {
	// Arrange
	store := testStore(t)
	ctx := context.Background()
	util.AssertNil(t, store.SaveFrame(ctx, "places", testFrame(t)))

	smaller := frame.New("")
	util.AssertNil(t, smaller.AppendRow(orb.Point{9, 9}, nil))

	// Act
	err := store.SaveFrame(ctx, "places", smaller)
	util.AssertNil(t, err)
	loaded, err := store.LoadFrame(ctx, "places")

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 1, loaded.Len())
}

func TestStore_loadUnknownDataset(t *testing.T) {
	// Arrange
	store := testStore(t)

	// Act
	_, err := store.LoadFrame(context.Background(), "nope")

	// Assert
	util.AssertError(t, "Dataset 'nope' does not exist", err)
}

func TestStore_listAndDelete(t *testing.T) {
	// Arrange
	store := testStore(t)
	ctx := context.Background()
	util.AssertNil(t, store.SaveFrame(ctx, "b-places", testFrame(t)))
	util.AssertNil(t, store.SaveFrame(ctx, "a-places", testFrame(t)))

	// Act & Assert
	names, err := store.ListDatasets(ctx)
	util.AssertNil(t, err)
	util.AssertEqual(t, []string{"a-places", "b-places"}, names)

	deleted, err := store.DeleteFrame(ctx, "a-places")
	util.AssertNil(t, err)
	util.AssertTrue(t, deleted)

	deleted, err = store.DeleteFrame(ctx, "a-places")
	util.AssertNil(t, err)
	util.AssertFalse(t, deleted)

	names, err = store.ListDatasets(ctx)
	util.AssertNil(t, err)
	util.AssertEqual(t, []string{"b-places"}, names)
}

func TestStore_queryLoadedFrame(t *testing.T) {
	// Arrange
	store := testStore(t)
	ctx := context.Background()
	util.AssertNil(t, store.SaveFrame(ctx, "places", testFrame(t)))

	loaded, err := store.LoadFrame(ctx, "places")
	util.AssertNil(t, err)

	// Act
	hits, err := loaded.Intersection([]float64{0, 0, 1, 1})

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 1, hits.Len())
}
