package main

import (
	"fmt"
	"io"

	"github.com/LdDl/osm2graph"
	"github.com/LdDl/osm2graph/cmd/osm2graph/cli"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var inspectQuiet bool

func init() {
	RootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVarP(&inspectQuiet, "quiet", "q", false, "Do not show progress bar")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <OSM file>",
	Short: "Print framing, encoding and element counts of an OSM file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return errors.Wrap(err, "Can't create logger")
		}
		defer logger.Sync()

		var malformed int64
		source := &cli.ProgressSource{Name: args[0], Quiet: inspectQuiet}
		stream := osm2graph.NewElementStream(source, osm2graph.WithMalformedHandler(func(kind osm2graph.ElementKind, id int64, reason string) {
			malformed++
			logger.Debug("Malformed element", zap.String("kind", kind.String()), zap.Int64("id", id), zap.String("reason", reason))
		}))
		reader, err := stream.Open(cmd.Context(), osm2graph.MASK_ALL)
		if err != nil {
			return err
		}
		defer reader.Close()

		counts := make(map[osm2graph.ElementKind]int64)
		restrictions := int64(0)
		for {
			element, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			counts[element.Kind()]++
			if relation, ok := element.(*osm2graph.Relation); ok {
				parsed, _ := osm2graph.ParseRestrictions(relation)
				restrictions += int64(len(parsed))
			}
		}
		fmt.Printf("File: %s\n", args[0])
		fmt.Printf("Framing: %s\n", reader.Framing())
		fmt.Printf("Encoding: %s\n", reader.Encoding())
		fmt.Printf("Points: %s\n", humanize.Comma(counts[osm2graph.KIND_POINT]))
		fmt.Printf("Ways: %s\n", humanize.Comma(counts[osm2graph.KIND_WAY]))
		fmt.Printf("Relations: %s\n", humanize.Comma(counts[osm2graph.KIND_RELATION]))
		fmt.Printf("Turn restrictions: %s\n", humanize.Comma(restrictions))
		fmt.Printf("Malformed: %s\n", humanize.Comma(malformed))
		return nil
	},
}
