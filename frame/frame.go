package frame

import (
	"fmt"
	"sort"
	"strings"

	"geoframe/sindex"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
)

const DefaultGeometryColumn = "geometry"

// GeoFrame is a tabular container for geospatial data: a list of attribute
// columns plus one geometry column. Rows are addressed by position, starting
// at 0.
type GeoFrame struct {
	geometryColumn string
	columns        []string
	data           map[string][]any
	geometries     []orb.Geometry

	// Lazily built index over the row geometries, invalidated on mutation.
	index *sindex.SpatialIndex
}

// New creates an empty GeoFrame with the given geometry column name and
// attribute columns. An empty geometry column name defaults to "geometry".
func New(geometryColumn string, columns ...string) *GeoFrame {
	if geometryColumn == "" {
		geometryColumn = DefaultGeometryColumn
	}

	data := map[string][]any{}
	for _, column := range columns {
		data[column] = nil
	}

	return &GeoFrame{
		geometryColumn: geometryColumn,
		columns:        append([]string{}, columns...),
		data:           data,
	}
}

// FromColumns creates a GeoFrame from complete columns. All attribute columns
// must have as many values as there are geometries. The column order is taken
// from the order arguments and falls back to alphabetical order when omitted.
func FromColumns(data map[string][]any, geometries []orb.Geometry, geometryColumn string, order ...string) (*GeoFrame, error) {
	if geometryColumn == "" {
		geometryColumn = DefaultGeometryColumn
	}

	if len(order) == 0 {
		for column := range data {
			order = append(order, column)
		}
		sort.Strings(order)
	} else if len(order) != len(data) {
		return nil, errors.Errorf("Column order names %d columns but %d were given", len(order), len(data))
	}

	frameData := map[string][]any{}
	for _, column := range order {
		values, ok := data[column]
		if !ok {
			return nil, errors.Errorf("Column order contains unknown column '%s'", column)
		}
		if column == geometryColumn {
			return nil, errors.Errorf("Attribute column '%s' clashes with the geometry column", column)
		}
		if len(values) != len(geometries) {
			return nil, errors.Errorf("Column '%s' has %d values but there are %d geometries", column, len(values), len(geometries))
		}
		frameData[column] = append([]any{}, values...)
	}

	return &GeoFrame{
		geometryColumn: geometryColumn,
		columns:        append([]string{}, order...),
		data:           frameData,
		geometries:     append([]orb.Geometry{}, geometries...),
	}, nil
}

// AppendRow adds a row with the given geometry. Attribute values are taken
// from the values map, columns without an entry get nil. Unknown columns in
// the map are an error.
func (f *GeoFrame) AppendRow(geometry orb.Geometry, values map[string]any) error {
	if geometry == nil {
		return errors.Errorf("Geometry of a row must not be nil")
	}
	for column := range values {
		if _, ok := f.data[column]; !ok {
			return errors.Errorf("Unknown column '%s'", column)
		}
	}

	for _, column := range f.columns {
		f.data[column] = append(f.data[column], values[column])
	}
	f.geometries = append(f.geometries, geometry)
	f.index = nil

	return nil
}

// Len returns the number of rows.
func (f *GeoFrame) Len() int {
	return len(f.geometries)
}

// Columns returns all column names in order, the geometry column last.
func (f *GeoFrame) Columns() []string {
	return append(append([]string{}, f.columns...), f.geometryColumn)
}

// GeometryColumn returns the name of the geometry column.
func (f *GeoFrame) GeometryColumn() string {
	return f.geometryColumn
}

// Column returns the values of the given attribute column.
func (f *GeoFrame) Column(name string) ([]any, error) {
	if name == f.geometryColumn {
		return nil, errors.Errorf("Column '%s' is the geometry column, use Geometries", name)
	}
	values, ok := f.data[name]
	if !ok {
		return nil, errors.Errorf("Unknown column '%s'", name)
	}
	return values, nil
}

// Value returns a single attribute value by row position and column name.
func (f *GeoFrame) Value(row int, column string) (any, error) {
	values, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	if row < 0 || row >= len(values) {
		return nil, errors.Errorf("Row position %d is out of range for frame with %d rows", row, f.Len())
	}
	return values[row], nil
}

// Geometry returns the geometry of the row at the given position.
func (f *GeoFrame) Geometry(row int) (orb.Geometry, error) {
	if row < 0 || row >= len(f.geometries) {
		return nil, errors.Errorf("Row position %d is out of range for frame with %d rows", row, f.Len())
	}
	return f.geometries[row], nil
}

// Geometries returns the geometries of all rows in row order.
func (f *GeoFrame) Geometries() []orb.Geometry {
	return append([]orb.Geometry{}, f.geometries...)
}

// Bound returns the extent of all row geometries.
func (f *GeoFrame) Bound() orb.Bound {
	var bound orb.Bound
	for i, geometry := range f.geometries {
		if i == 0 {
			bound = geometry.Bound()
		} else {
			bound = bound.Union(geometry.Bound())
		}
	}
	return bound
}

// Sindex returns the spatial index over the rows of this frame. The index
// uses the row position as id and the bounding box of the row geometry as
// box. It is built on first use and rebuilt after the frame was modified.
func (f *GeoFrame) Sindex() (*sindex.SpatialIndex, error) {
	if f.index != nil {
		return f.index, nil
	}

	index := sindex.New()
	for i, geometry := range f.geometries {
		bound := geometry.Bound()
		err := index.Insert(int64(i), []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]})
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to index geometry of row %d", i)
		}
	}

	f.index = index
	return index, nil
}

// Take returns a new GeoFrame containing the rows at the given positions, in
// the given order.
func (f *GeoFrame) Take(rows []int) (*GeoFrame, error) {
	result := New(f.geometryColumn, f.columns...)
	for _, row := range rows {
		if row < 0 || row >= f.Len() {
			return nil, errors.Errorf("Row position %d is out of range for frame with %d rows", row, f.Len())
		}
		values := map[string]any{}
		for _, column := range f.columns {
			values[column] = f.data[column][row]
		}
		err := result.AppendRow(f.geometries[row], values)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Intersection returns the rows whose geometry bounding box intersects the
// given query box. The bounds follow the interleaved ordering
// (xmin, ymin, xmax, ymax).
func (f *GeoFrame) Intersection(bounds []float64) (*GeoFrame, error) {
	index, err := f.Sindex()
	if err != nil {
		return nil, err
	}

	ids, err := index.Intersection(bounds)
	if err != nil {
		return nil, err
	}

	return f.Take(toRows(ids))
}

// Nearest returns the k rows whose geometry bounding box is closest to the
// given query box, ties included.
func (f *GeoFrame) Nearest(bounds []float64, k int) (*GeoFrame, error) {
	index, err := f.Sindex()
	if err != nil {
		return nil, err
	}

	ids, err := index.Nearest(bounds, k)
	if err != nil {
		return nil, err
	}

	return f.Take(toRows(ids))
}

// String renders the frame as an aligned table, geometries as WKT.
func (f *GeoFrame) String() string {
	header := f.Columns()
	cells := make([][]string, f.Len())
	for row := 0; row < f.Len(); row++ {
		cells[row] = make([]string, 0, len(header))
		for _, column := range f.columns {
			cells[row] = append(cells[row], fmt.Sprintf("%v", f.data[column][row]))
		}
		cells[row] = append(cells[row], wkt.MarshalString(f.geometries[row]))
	}

	positionWidth := len(fmt.Sprintf("%d", f.Len()))
	widths := make([]int, len(header))
	for i, column := range header {
		widths[i] = len(column)
		for row := 0; row < f.Len(); row++ {
			if len(cells[row][i]) > widths[i] {
				widths[i] = len(cells[row][i])
			}
		}
	}

	builder := strings.Builder{}
	builder.WriteString(strings.Repeat(" ", positionWidth))
	for i, column := range header {
		builder.WriteString(fmt.Sprintf("  %*s", widths[i], column))
	}
	builder.WriteString("\n")
	for row := 0; row < f.Len(); row++ {
		builder.WriteString(fmt.Sprintf("%*d", positionWidth, row))
		for i := range header {
			builder.WriteString(fmt.Sprintf("  %*s", widths[i], cells[row][i]))
		}
		builder.WriteString("\n")
	}
	return builder.String()
}

func toRows(ids []int64) []int {
	rows := make([]int, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, int(id))
	}
	return rows
}
