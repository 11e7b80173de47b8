package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/LdDl/ch"
	"github.com/LdDl/osm2graph"
	"github.com/LdDl/osm2graph/cmd/osm2graph/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var importFlags struct {
	config    string
	file      string
	out       string
	tags      string
	geomf     string
	units     string
	contract  bool
	index     string
	tmp       string
	workers   int
	tolerance float64
	minLength float64
	bbox      []float64
	quiet     bool
}

func init() {
	RootCmd.AddCommand(importCmd)
	flags := importCmd.Flags()
	flags.StringVarP(&importFlags.config, "config", "c", "", "YAML configuration file. Flags override its values")
	flags.StringVarP(&importFlags.file, "file", "f", "my_graph.osm.pbf", "Filename of OSM file (XML or PBF, optionally gzip/zip/zstd/xz/lz4 compressed)")
	flags.StringVarP(&importFlags.out, "out", "o", "my_graph.csv", "Filename of 'Comma-Separated Values' (CSV) formatted file. E.g.: if file name is 'map.csv' then 'map.csv' (edges), 'map_vertices.csv', 'map_turn_costs.csv' will be produced and 'map_shortcuts.csv' when contraction is enabled")
	flags.StringVar(&importFlags.tags, "tags", "", "Set of needed highway tags (separated by commas). Empty means every supported highway")
	flags.StringVar(&importFlags.geomf, "geomf", "wkt", "Format of output geometry. Expected values: wkt / geojson / polyline")
	flags.StringVar(&importFlags.units, "units", "km", "Units of output weights. Expected values: km for kilometers / m for meters")
	flags.BoolVar(&importFlags.contract, "contract", false, "Prepare contraction hierarchies for 'auto' agent")
	flags.StringVar(&importFlags.index, "index", "paged", "Node index backend. Expected values: paged / leveldb")
	flags.StringVar(&importFlags.tmp, "tmp", "", "Directory for temporary files")
	flags.IntVar(&importFlags.workers, "workers", 0, "Number of goroutines classifying ways. Zero means number of CPUs")
	flags.Float64Var(&importFlags.tolerance, "tolerance", osm2graph.DefaultSimplifyTolerance, "Douglas-Peucker tolerance for edge geometry (meters). Zero disables simplification")
	flags.Float64Var(&importFlags.minLength, "min-length", osm2graph.DefaultMinEdgeLength, "Length edges shorter than are clamped to (meters)")
	flags.Float64SliceVar(&importFlags.bbox, "bbox", nil, "Bounding box: min_lon,min_lat,max_lon,max_lat")
	flags.BoolVarP(&importFlags.quiet, "quiet", "q", false, "Do not show progress bar")
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import OSM file and export graph to CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return errors.Wrap(err, "Can't create logger")
		}
		defer logger.Sync()

		cfg, err := importConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return runImport(cmd.Context(), cfg, logger)
	},
}

// importConfig merges configuration file with flags set explicitly
func importConfig(flags *pflag.FlagSet) (*osm2graph.Config, error) {
	cfg := osm2graph.DefaultConfig()
	if importFlags.config != "" {
		loaded, err := osm2graph.LoadConfig(importFlags.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags.Changed("file") || cfg.Source.File == "" {
		cfg.Source.File = importFlags.file
	}
	if flags.Changed("out") {
		cfg.Output.File = importFlags.out
	}
	if flags.Changed("tags") {
		cfg.Profile.Tags = nil
		for _, tag := range strings.Split(importFlags.tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				cfg.Profile.Tags = append(cfg.Profile.Tags, tag)
			}
		}
	}
	if flags.Changed("geomf") {
		cfg.Output.GeomFormat = importFlags.geomf
	}
	if flags.Changed("units") {
		cfg.Output.Units = importFlags.units
	}
	if flags.Changed("contract") {
		cfg.Output.Contract = importFlags.contract
	}
	if flags.Changed("index") {
		cfg.Import.Index = importFlags.index
	}
	if flags.Changed("tmp") {
		cfg.Import.TmpDir = importFlags.tmp
	}
	if flags.Changed("workers") {
		cfg.Import.Workers = importFlags.workers
	}
	if flags.Changed("tolerance") {
		cfg.Import.SimplifyTolerance = importFlags.tolerance
	}
	if flags.Changed("min-length") {
		cfg.Import.MinEdgeLength = importFlags.minLength
	}
	if flags.Changed("bbox") {
		cfg.Source.BBox = importFlags.bbox
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runImport(ctx context.Context, cfg *osm2graph.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	bound, err := cfg.Bound()
	if err != nil {
		return err
	}
	var graphOptions []func(*osm2graph.MemoryGraph)
	if bound != nil {
		graphOptions = append(graphOptions, osm2graph.WithBound(*bound))
	}
	graph := osm2graph.NewMemoryGraph(graphOptions...)

	options, err := cfg.ImporterOptions()
	if err != nil {
		return err
	}
	options = append(options, osm2graph.WithLogger(logger))
	source := &cli.ProgressSource{Name: cfg.Source.File, Quiet: importFlags.quiet}
	importer := osm2graph.NewImporter(source, graph, options...)
	logger.Debug(importer.String())

	st := time.Now()
	report, err := importer.Run(ctx)
	fmt.Println(report)
	if err != nil {
		return errors.Wrap(err, "Can't import OSM file")
	}
	logger.Info("Imported", zap.Duration("took", time.Since(st)))

	format, _ := osm2graph.ParseGeomFormat(cfg.Output.GeomFormat)
	if err := graph.ExportToCSV(cfg.Output.File, format); err != nil {
		return err
	}
	if !cfg.Output.Contract {
		return nil
	}
	return contract(graph, cfg, format, logger)
}

// contract prepares contraction hierarchies and exports hierarchy order and shortcuts
func contract(graph *osm2graph.MemoryGraph, cfg *osm2graph.Config, format osm2graph.GeomFormat, logger *zap.Logger) error {
	meters := strings.ToLower(cfg.Output.Units) == "m"
	chGraph, err := osm2graph.NewContractionGraph(graph, osm2graph.AGENT_AUTO, meters)
	if err != nil {
		return err
	}
	logger.Info("Starting contraction process")
	st := time.Now()
	chGraph.PrepareContractionHierarchies()
	logger.Info("Done contraction process", zap.Duration("took", time.Since(st)))

	fnameEdges, _, _ := osm2graph.ExportFileNames(cfg.Output.File)
	fnamePart := strings.TrimSuffix(fnameEdges, ".csv")
	if err := exportHierarchy(chGraph, graph, fnamePart+"_hierarchy.csv", format); err != nil {
		return err
	}
	err = chGraph.ExportShortcutsToFile(fnamePart + "_shortcuts.csv")
	if err != nil {
		return errors.Wrap(err, "Can't export shortcuts")
	}
	return nil
}

func exportHierarchy(chGraph *ch.Graph, graph *osm2graph.MemoryGraph, fname string, format osm2graph.GeomFormat) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create hierarchy file")
	}
	defer file.Close()
	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'
	// 		vertex_id - int64, ID of vertex
	// 		order_pos - int, Position of vertex in hierarchies (evaluted by library)
	// 		importance - int, Importance of vertex in graph (evaluted by library)
	//      geom - geometry (WKT, GeoJSON or polyline representation)
	err = writer.Write([]string{"vertex_id", "order_pos", "importance", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write hierarchy header")
	}
	for i := range chGraph.Vertices {
		vertex := chGraph.Vertices[i]
		point, err := graph.Node(osm2graph.NodeID(vertex.Label))
		if err != nil {
			return err
		}
		geomStr, err := osm2graph.FormatPoint(point, format)
		if err != nil {
			return err
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", vertex.Label),
			fmt.Sprintf("%d", vertex.OrderPos()),
			fmt.Sprintf("%d", vertex.Importance()),
			geomStr,
		})
		if err != nil {
			return errors.Wrap(err, "Can't write vertex")
		}
	}
	return nil
}
