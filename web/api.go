package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"geoframe/frame"
	ownIo "geoframe/io"

	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

// StartServer serves the configured dataset until the process is stopped.
func StartServer(config *Config) {
	f, err := loadFrame(config)
	sigolo.FatalCheck(err)
	sigolo.Infof("Serving dataset with %d rows", f.Len())

	r := initRouter(f)
	if config.CertFile != "" && config.KeyFile != "" {
		sigolo.Infof("Start server with TLS support on port %s", config.Port)
		err = http.ListenAndServeTLS(":"+config.Port, config.CertFile, config.KeyFile, r)
	} else {
		sigolo.Infof("Start server without TLS support on port %s", config.Port)
		err = http.ListenAndServe(":"+config.Port, r)
	}
	sigolo.FatalCheck(err)
}

func initRouter(f *frame.GeoFrame) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/features", func(writer http.ResponseWriter, request *http.Request) {
		writeFrame(writer, f)
	}).Methods(http.MethodGet)

	r.HandleFunc("/intersection", func(writer http.ResponseWriter, request *http.Request) {
		bbox, err := parseBbox(request.URL.Query().Get("bbox"))
		if err != nil {
			writeError(writer, http.StatusBadRequest, err)
			return
		}

		hits, err := f.Intersection(bbox)
		if err != nil {
			writeError(writer, http.StatusInternalServerError, err)
			return
		}

		sigolo.Debugf("Found %d intersecting rows for bbox %v", hits.Len(), bbox)
		writeFrame(writer, hits)
	}).Methods(http.MethodGet)

	r.HandleFunc("/nearest", func(writer http.ResponseWriter, request *http.Request) {
		bbox, err := parseBbox(request.URL.Query().Get("bbox"))
		if err != nil {
			writeError(writer, http.StatusBadRequest, err)
			return
		}

		k := 1
		if kParam := request.URL.Query().Get("k"); kParam != "" {
			k, err = strconv.Atoi(kParam)
			if err != nil || k < 1 {
				writeError(writer, http.StatusBadRequest, errors.Errorf("Invalid number of neighbors '%s'", kParam))
				return
			}
		}

		hits, err := f.Nearest(bbox, k)
		if err != nil {
			writeError(writer, http.StatusInternalServerError, err)
			return
		}

		sigolo.Debugf("Found %d nearest rows for bbox %v", hits.Len(), bbox)
		writeFrame(writer, hits)
	}).Methods(http.MethodGet)

	return r
}

func loadFrame(config *Config) (*frame.GeoFrame, error) {
	if config.GeoJsonFile != "" {
		return ownIo.ReadGeoJsonFile(config.GeoJsonFile)
	}
	return loadFrameFromStore(config)
}

func writeFrame(writer http.ResponseWriter, f *frame.GeoFrame) {
	writer.Header().Set("Access-Control-Allow-Origin", "*")
	writer.Header().Set("Content-Type", "application/geo+json")

	err := ownIo.WriteGeoJson(f, writer)
	if err != nil {
		sigolo.Errorf("Error writing query result: %+v", err)
		writer.WriteHeader(http.StatusInternalServerError)
		_, err = writer.Write([]byte("Error writing query result."))
		if err != nil {
			sigolo.Errorf("Error writing error response: %+v", err)
		}
	}
}

func writeError(writer http.ResponseWriter, status int, err error) {
	sigolo.Errorf("Error handling request: %+v", err)
	writer.WriteHeader(status)
	_, err = writer.Write([]byte(fmt.Sprintf("%v", err)))
	if err != nil {
		sigolo.Errorf("Error writing error response: %+v", err)
	}
}

// parseBbox parses "xmin,ymin,xmax,ymax" into a bounds slice.
func parseBbox(bboxParam string) ([]float64, error) {
	if bboxParam == "" {
		return nil, errors.Errorf("Missing 'bbox' query parameter")
	}

	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 {
		return nil, errors.Errorf("Expected 4 comma-separated values in bbox parameter but got %d", len(parts))
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
