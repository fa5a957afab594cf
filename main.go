package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"geoframe/frame"
	"geoframe/importing"
	ownIo "geoframe/io"
	"geoframe/storage"
	"geoframe/web"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Import  struct {
		Input     string   `help:"The input file. Either .geojson, .csv, .osm or .osm.pbf." placeholder:"<input-file>" arg:"" type:"existingfile"`
		Db        string   `help:"The SQLite database to store the dataset in." default:"geoframe.db"`
		Dataset   string   `help:"The name of the dataset." default:"default"`
		LonColumn string   `help:"The longitude column of CSV input." default:"lon"`
		LatColumn string   `help:"The latitude column of CSV input." default:"lat"`
		Tag       []string `help:"Tag keys to turn into columns for OSM input."`
	} `cmd:"" help:"Imports the given file into a dataset to query it later."`
	Query struct {
		Bbox    string `help:"The query box as 'xmin,ymin,xmax,ymax'." placeholder:"<bbox>" arg:""`
		Input   string `help:"A GeoJSON file to query instead of a stored dataset."`
		Db      string `help:"The SQLite database containing the dataset." default:"geoframe.db"`
		Dataset string `help:"The name of the dataset." default:"default"`
		Nearest int    `help:"Return the n nearest rows instead of the intersecting ones." default:"0"`
		Output  string `help:"Output file for the GeoJSON result. Prints to stdout when omitted."`
	} `cmd:"" help:"Returns the rows of a dataset matching the given bounding box."`
	Serve struct {
		Config string `help:"The YAML config file of the server." placeholder:"<config-file>" arg:"" type:"existingfile"`
	} `cmd:"" help:"Starts the HTTP API for a dataset."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("geoframe"),
		kong.Description("Spatial indexing and querying for tabular geospatial data."),
		kong.Vars{
			"version": VERSION,
		},
	)

	if strings.ToLower(cli.Logging) == "debug" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	} else if strings.ToLower(cli.Logging) == "trace" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	} else if strings.ToLower(cli.Logging) == "info" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	} else {
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	switch ctx.Command() {
	case "import <input>":
		importFile()
	case "query <bbox>":
		query()
	case "serve <config>":
		serve()
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
		os.Exit(1)
	}
}

func importFile() {
	f, err := readInput(cli.Import.Input)
	sigolo.FatalCheck(err)

	store, err := storage.Open(cli.Import.Db)
	sigolo.FatalCheck(err)
	defer store.Close()

	err = store.SaveFrame(context.Background(), cli.Import.Dataset, f)
	sigolo.FatalCheck(err)

	sigolo.Infof("Imported %d rows into dataset '%s' of %s", f.Len(), cli.Import.Dataset, cli.Import.Db)
}

func query() {
	bbox, err := parseBbox(cli.Query.Bbox)
	sigolo.FatalCheck(err)

	var f *frame.GeoFrame
	if cli.Query.Input != "" {
		f, err = ownIo.ReadGeoJsonFile(cli.Query.Input)
		sigolo.FatalCheck(err)
	} else {
		store, err := storage.Open(cli.Query.Db)
		sigolo.FatalCheck(err)
		defer store.Close()

		f, err = store.LoadFrame(context.Background(), cli.Query.Dataset)
		sigolo.FatalCheck(err)
	}

	var result *frame.GeoFrame
	if cli.Query.Nearest > 0 {
		result, err = f.Nearest(bbox, cli.Query.Nearest)
	} else {
		result, err = f.Intersection(bbox)
	}
	sigolo.FatalCheck(err)

	sigolo.Debugf("Found %d rows", result.Len())

	if cli.Query.Output != "" {
		err = ownIo.WriteGeoJsonFile(result, cli.Query.Output)
	} else {
		err = ownIo.WriteGeoJson(result, os.Stdout)
	}
	sigolo.FatalCheck(err)
}

func serve() {
	config, err := web.LoadConfig(cli.Serve.Config)
	sigolo.FatalCheck(err)

	web.StartServer(config)
}

func readInput(inputFile string) (*frame.GeoFrame, error) {
	switch {
	case strings.HasSuffix(inputFile, ".geojson") || strings.HasSuffix(inputFile, ".json"):
		return ownIo.ReadGeoJsonFile(inputFile)
	case strings.HasSuffix(inputFile, ".csv"):
		return ownIo.ReadCsvFile(inputFile, cli.Import.LonColumn, cli.Import.LatColumn)
	case strings.HasSuffix(inputFile, ".osm") || strings.HasSuffix(inputFile, ".pbf"):
		return importing.ImportNodes(inputFile, cli.Import.Tag...)
	}
	return nil, errors.Errorf("Unsupported input file type of %s", inputFile)
}

func parseBbox(bboxParam string) ([]float64, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 {
		return nil, errors.Errorf("Expected 4 comma-separated values in bbox '%s' but got %d", bboxParam, len(parts))
	}

	bbox := make([]float64, 4)
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid bbox value '%s'", part)
		}
		bbox[i] = value
	}
	return bbox, nil
}
