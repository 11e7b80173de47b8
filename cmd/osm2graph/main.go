package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

// RootCmd is the base command
var RootCmd = &cobra.Command{
	Use:   "osm2graph",
	Short: "Convert OpenStreetMap extract into routable graph",
	Long:  "Convert OpenStreetMap extract (XML or PBF, optionally compressed) into routable graph with turn restrictions",
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
