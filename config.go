package osm2graph

import (
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is a YAML description of an import
type Config struct {
	Source struct {
		File string `yaml:"file"`
		// BBox is min_lon, min_lat, max_lon, max_lat
		BBox []float64 `yaml:"bbox"`
	} `yaml:"source"`
	Output struct {
		File       string `yaml:"file"`
		GeomFormat string `yaml:"geom_format"`
		Units      string `yaml:"units"`
		Contract   bool   `yaml:"contract"`
	} `yaml:"output"`
	Profile struct {
		Tags   []string `yaml:"tags"`
		Agents []string `yaml:"agents"`
	} `yaml:"profile"`
	Import struct {
		Index             string  `yaml:"index"`
		TmpDir            string  `yaml:"tmp_dir"`
		Workers           int     `yaml:"workers"`
		Buffer            int     `yaml:"buffer"`
		SimplifyTolerance float64 `yaml:"simplify_tolerance"`
		MinEdgeLength     float64 `yaml:"min_edge_length"`
		Elevation         bool    `yaml:"elevation"`
		DropDeadEnds      bool    `yaml:"drop_dead_ends"`
		MaxDiagnostics    int     `yaml:"max_diagnostics"`
	} `yaml:"import"`
}

// DefaultConfig returns configuration used when no file is given
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Output.File = "my_graph.csv"
	cfg.Output.GeomFormat = "wkt"
	cfg.Output.Units = "km"
	cfg.Import.Index = "paged"
	cfg.Import.SimplifyTolerance = DefaultSimplifyTolerance
	cfg.Import.MinEdgeLength = DefaultMinEdgeLength
	cfg.Import.MaxDiagnostics = defaultMaxDiagnostics
	return cfg
}

// LoadConfig reads YAML file on top of defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read config file '%s'", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "Can't parse config file '%s'", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values which can't be checked by YAML decoding
func (cfg *Config) Validate() error {
	if _, err := ParseGeomFormat(cfg.Output.GeomFormat); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Output.Units) {
	case "", "km", "m":
	default:
		return errors.Errorf("unknown units '%s'", cfg.Output.Units)
	}
	if _, err := ParseIndexBackend(cfg.Import.Index); err != nil {
		return err
	}
	if _, err := cfg.Agents(); err != nil {
		return err
	}
	if _, err := cfg.Bound(); err != nil {
		return err
	}
	if cfg.Import.SimplifyTolerance < 0 {
		return errors.New("simplify_tolerance must not be negative")
	}
	if cfg.Import.MinEdgeLength <= 0 {
		return errors.New("min_edge_length must be positive")
	}
	return nil
}

// Agents parses profile agents. Empty list means every agent
func (cfg *Config) Agents() ([]AgentType, error) {
	if len(cfg.Profile.Agents) == 0 {
		return agentTypesAll, nil
	}
	agents := make([]AgentType, 0, len(cfg.Profile.Agents))
	for _, name := range cfg.Profile.Agents {
		found := false
		for _, agent := range agentTypesAll {
			if agent.String() == strings.ToLower(strings.TrimSpace(name)) {
				agents = append(agents, agent)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Errorf("unknown agent '%s'", name)
		}
	}
	return agents, nil
}

// Bound returns source bounding box or nil when it is not set
func (cfg *Config) Bound() (*orb.Bound, error) {
	if len(cfg.Source.BBox) == 0 {
		return nil, nil
	}
	if len(cfg.Source.BBox) != 4 {
		return nil, errors.Errorf("bbox must have 4 values, got %d", len(cfg.Source.BBox))
	}
	bbox := cfg.Source.BBox
	if bbox[0] > bbox[2] || bbox[1] > bbox[3] {
		return nil, errors.New("bbox must be min_lon, min_lat, max_lon, max_lat")
	}
	return &orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}, nil
}

// Classifier builds highway classifier from profile
func (cfg *Config) Classifier() (*HighwayClassifier, error) {
	agents, err := cfg.Agents()
	if err != nil {
		return nil, err
	}
	classifier := NewHighwayClassifier(cfg.Profile.Tags...)
	classifier.Agents = agents
	return classifier, nil
}

// ImporterOptions converts configuration into importer options
func (cfg *Config) ImporterOptions() ([]func(*Importer), error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, _ := ParseIndexBackend(cfg.Import.Index)
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}
	options := []func(*Importer){
		WithClassifier(classifier),
		WithIndexBackend(backend),
		WithTempDir(cfg.Import.TmpDir),
		WithSimplifyTolerance(cfg.Import.SimplifyTolerance),
		WithMinEdgeLength(cfg.Import.MinEdgeLength),
		WithElevation(cfg.Import.Elevation),
		WithEndpointTowers(!cfg.Import.DropDeadEnds),
		WithMaxDiagnostics(cfg.Import.MaxDiagnostics),
	}
	if cfg.Import.Workers > 0 {
		options = append(options, WithWorkers(cfg.Import.Workers))
	}
	if cfg.Import.Buffer > 0 {
		options = append(options, WithBufferSize(cfg.Import.Buffer))
	}
	return options, nil
}
