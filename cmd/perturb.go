package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fwdtrain/fwdtrain/train"
)

var (
	perturbSeeds  []string // Seeds to regenerate, decimal or 0x-prefixed hex
	perturbLength int      // Vector length
)

// perturbation is one regenerated vector.
type perturbation struct {
	Seed   uint64    `json:"seed"`
	Values []float32 `json:"values"`
}

// perturbCmd regenerates perturbation vectors from their seeds
var perturbCmd = &cobra.Command{
	Use:   "perturb",
	Short: "Print the perturbation vector for one or more seeds",
	Run: func(cmd *cobra.Command, args []string) {
		if err := writePerturbations(context.Background(), cmd.OutOrStdout(), perturbSeeds, perturbLength); err != nil {
			logrus.Fatalf("Generating perturbations: %v", err)
		}
	},
}

func parseSeeds(raw []string) ([]train.Seed, error) {
	seeds := make([]train.Seed, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseUint(r, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", r, err)
		}
		seeds = append(seeds, train.Seed(v))
	}
	return seeds, nil
}

// writePerturbations prints one JSON object per seed, in seed order.
func writePerturbations(ctx context.Context, w io.Writer, raw []string, length int) error {
	if len(raw) == 0 {
		return fmt.Errorf("at least one --seed is required")
	}
	if length < 0 {
		return fmt.Errorf("length must be >= 0, got %d", length)
	}
	seeds, err := parseSeeds(raw)
	if err != nil {
		return err
	}
	vectors, err := train.GenerateBatch(ctx, seeds, length)
	if err != nil {
		return err
	}
	for i, s := range seeds {
		if err := printJSON(w, perturbation{Seed: uint64(s), Values: vectors[i]}); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	perturbCmd.Flags().StringSliceVar(&perturbSeeds, "seed", nil, "Seed to regenerate (repeatable or comma-separated)")
	perturbCmd.Flags().IntVar(&perturbLength, "length", 16, "Number of values per vector")

	rootCmd.AddCommand(perturbCmd)
}
