// Command strata evaluates a detector description and prints the layers
// built from it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/chazu/strata/internal/monitoring"
	"github.com/chazu/strata/pkg/engine"
	"github.com/chazu/strata/pkg/layerbuilder"
	"github.com/chazu/strata/pkg/surface"
	"gonum.org/v1/gonum/floats"
)

func main() {
	geometry := flag.String("geometry", "", "detector description (.lisp)")
	config := flag.String("config", "", "layer configuration (.yaml)")
	sideName := flag.String("side", "all", "central, negative, positive or all")
	quiet := flag.Bool("q", false, "suppress builder diagnostics")
	flag.Parse()

	if *geometry == "" || *config == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	sides := []layerbuilder.Side{layerbuilder.Negative, layerbuilder.Central, layerbuilder.Positive}
	if *sideName != "all" {
		side, err := layerbuilder.ParseSide(*sideName)
		if err != nil {
			log.Fatal(err)
		}
		sides = []layerbuilder.Side{side}
	}

	source, err := os.ReadFile(*geometry)
	if err != nil {
		log.Fatal(err)
	}
	g, evalErrs, err := engine.NewEngine().Evaluate(string(source))
	if err != nil {
		log.Fatal(err)
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			fmt.Fprintf(os.Stderr, "%s: %s\n", *geometry, e)
		}
		os.Exit(1)
	}

	cfg, err := layerbuilder.LoadConfig(*config)
	if err != nil {
		log.Fatal(err)
	}

	b := layerbuilder.New(cfg)
	for _, side := range sides {
		layers, err := b.Layers(surface.Context{}, g, side)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s: %d layer(s)\n", side, len(layers))
		if len(layers) == 0 {
			continue
		}

		positions := make([]float64, len(layers))
		thickness := make([]float64, len(layers))
		for i, l := range layers {
			fmt.Printf("  %s\n", l)
			positions[i] = l.Z
			if l.Kind == layerbuilder.Cylinder {
				positions[i] = l.R
			}
			thickness[i] = l.Thickness
		}
		fmt.Printf("  span [%.3f, %.3f], total thickness %.3f\n",
			floats.Min(positions), floats.Max(positions), floats.Sum(thickness))
	}
}
