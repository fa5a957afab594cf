package io

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"geoframe/frame"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

func ReadCsvFile(filename string, lonColumn string, latColumn string) (*frame.GeoFrame, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open CSV file %s", filename)
	}

	defer func() {
		err = file.Close()
		sigolo.FatalCheck(errors.Wrapf(err, "Unable to close file handle for CSV file %s", filename))
	}()

	return ReadCsv(file, lonColumn, latColumn)
}

// ReadCsv turns CSV records into a GeoFrame of points. The first record is
// the header. The two coordinate columns become the point geometry, all other
// columns become string-valued attribute columns.
func ReadCsv(reader io.Reader, lonColumn string, latColumn string) (*frame.GeoFrame, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read CSV input")
	}
	if len(records) == 0 {
		return nil, errors.Errorf("CSV input is empty, expected at least a header record")
	}

	header := records[0]
	lonIndex := -1
	latIndex := -1
	var columns []string
	for i, column := range header {
		switch column {
		case lonColumn:
			lonIndex = i
		case latColumn:
			latIndex = i
		default:
			columns = append(columns, column)
		}
	}
	if lonIndex == -1 || latIndex == -1 {
		return nil, errors.Errorf("CSV header %v does not contain the coordinate columns '%s' and '%s'", header, lonColumn, latColumn)
	}

	f := frame.New("", columns...)
	for recordIndex, record := range records[1:] {
		if len(record) != len(header) {
			return nil, errors.Errorf("CSV record %d has %d fields but the header has %d", recordIndex+1, len(record), len(header))
		}

		lon, err := strconv.ParseFloat(strings.TrimSpace(record[lonIndex]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid longitude value '%s' in CSV record %d", record[lonIndex], recordIndex+1)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[latIndex]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid latitude value '%s' in CSV record %d", record[latIndex], recordIndex+1)
		}

		values := map[string]any{}
		for i, field := range record {
			if i == lonIndex || i == latIndex {
				continue
			}
			values[header[i]] = field
		}

		err = f.AppendRow(orb.Point{lon, lat}, values)
		if err != nil {
			return nil, err
		}
	}

	sigolo.Debugf("Read %d rows from CSV", f.Len())

	return f, nil
}
