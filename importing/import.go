package importing

import (
	"context"
	"os"
	"strings"
	"time"

	"geoframe/frame"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
)

// ImportNodes reads all nodes of the given .osm or .osm.pbf file into a point
// frame. The frame gets an "osm_id" column plus one column per requested tag
// key; nodes without that tag get nil.
func ImportNodes(inputFile string, tagKeys ...string) (*frame.GeoFrame, error) {
	if !strings.HasSuffix(inputFile, ".osm") && !strings.HasSuffix(inputFile, ".pbf") {
		return nil, errors.Errorf("Input file %s must be an .osm or .pbf file", inputFile)
	}

	f, err := os.Open(inputFile)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open input file %s", inputFile)
	}
	defer f.Close()

	var scanner osm.Scanner
	if strings.HasSuffix(inputFile, ".osm") {
		scanner = osmxml.New(context.Background(), f)
	} else {
		scanner = osmpbf.New(context.Background(), f, 1)
	}
	defer scanner.Close()

	sigolo.Debug("Start processing input data")
	importStartTime := time.Now()

	columns := append([]string{"osm_id"}, tagKeys...)
	result := frame.New("", columns...)

	for scanner.Scan() {
		obj := scanner.Object()
		switch osmObj := obj.(type) {
		case *osm.Node:
			values := map[string]any{"osm_id": int64(osmObj.ID)}
			for _, key := range tagKeys {
				if value, ok := findTag(osmObj.Tags, key); ok {
					values[key] = value
				}
			}

			err = result.AppendRow(orb.Point{osmObj.Lon, osmObj.Lat}, values)
			if err != nil {
				return nil, err
			}
		}
		// Ways and relations carry no coordinates of their own and would need
		// node resolution, only nodes are imported.
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "Error scanning input file %s", inputFile)
	}

	sigolo.Debugf("Imported %d nodes from OSM data in %s", result.Len(), time.Since(importStartTime))

	return result, nil
}

func findTag(tags osm.Tags, key string) (string, bool) {
	for _, tag := range tags {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}
