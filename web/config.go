package web

import (
	"context"
	"os"

	"geoframe/frame"
	"geoframe/storage"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes the server and the dataset it serves. Exactly one of
// GeoJsonFile or Database+Dataset must be set.
type Config struct {
	Port     string `yaml:"port"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`

	GeoJsonFile string `yaml:"geojson_file,omitempty"`
	Database    string `yaml:"database,omitempty"`
	Dataset     string `yaml:"dataset,omitempty"`
}

// LoadConfig reads and validates the YAML configuration at the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read config file %s", path)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrapf(err, "Unable to parse config file %s", path)
	}

	if config.Port == "" {
		config.Port = "8080"
	}
	if config.GeoJsonFile == "" && (config.Database == "" || config.Dataset == "") {
		return nil, errors.Errorf("Config file %s must either set geojson_file or both database and dataset", path)
	}
	if config.GeoJsonFile != "" && config.Database != "" {
		return nil, errors.Errorf("Config file %s must not set both geojson_file and database", path)
	}

	return &config, nil
}

func loadFrameFromStore(config *Config) (*frame.GeoFrame, error) {
	store, err := storage.Open(config.Database)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.LoadFrame(context.Background(), config.Dataset)
}
