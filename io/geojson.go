package io

import (
	"io"
	"os"
	"sort"
	"time"

	"geoframe/frame"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

func WriteGeoJsonFile(f *frame.GeoFrame, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to create GeoJSON file %s", filename)
	}

	defer func() {
		err = file.Close()
		sigolo.FatalCheck(errors.Wrapf(err, "Unable to close file handle for GeoJSON file %s", filename))
	}()

	return WriteGeoJson(f, file)
}

func WriteGeoJson(f *frame.GeoFrame, writer io.Writer) error {
	sigolo.Debugf("Write %d rows to GeoJSON", f.Len())
	writeStartTime := time.Now()

	attributeColumns := f.Columns()
	attributeColumns = attributeColumns[:len(attributeColumns)-1]

	featureCollection := geojson.NewFeatureCollection()
	for row := 0; row < f.Len(); row++ {
		geometry, err := f.Geometry(row)
		if err != nil {
			return err
		}

		feature := geojson.NewFeature(geometry)
		for _, column := range attributeColumns {
			value, err := f.Value(row, column)
			if err != nil {
				return err
			}
			if value != nil {
				feature.Properties[column] = value
			}
		}

		featureCollection.Features = append(featureCollection.Features, feature)
	}

	geojsonBytes, err := featureCollection.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Unable to marshal feature collection")
	}

	_, err = writer.Write(geojsonBytes)
	if err != nil {
		return errors.Wrap(err, "Unable to write GeoJSON output")
	}

	sigolo.Debugf("Finished writing in %s", time.Since(writeStartTime))

	return nil
}

func ReadGeoJsonFile(filename string) (*frame.GeoFrame, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open GeoJSON file %s", filename)
	}

	defer func() {
		err = file.Close()
		sigolo.FatalCheck(errors.Wrapf(err, "Unable to close file handle for GeoJSON file %s", filename))
	}()

	return ReadGeoJson(file)
}

// ReadGeoJson parses a GeoJSON feature collection into a GeoFrame. The
// attribute columns are the union of all property keys, rows without a value
// for a column get nil. Features without a geometry are skipped.
func ReadGeoJson(reader io.Reader) (*frame.GeoFrame, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read GeoJSON input")
	}

	featureCollection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal feature collection")
	}

	columnSet := map[string]bool{}
	for _, feature := range featureCollection.Features {
		for key := range feature.Properties {
			columnSet[key] = true
		}
	}
	var columns []string
	for column := range columnSet {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	f := frame.New("", columns...)
	for i, feature := range featureCollection.Features {
		if feature.Geometry == nil {
			sigolo.Debugf("Skipping feature %d without geometry", i)
			continue
		}

		values := map[string]any{}
		for key, value := range feature.Properties {
			values[key] = value
		}

		err = f.AppendRow(feature.Geometry, values)
		if err != nil {
			return nil, err
		}
	}

	sigolo.Debugf("Read %d rows from GeoJSON", f.Len())

	return f, nil
}
