package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/layer"
	"github.com/civic-gis/gis-cli/internal/split"
)

// splitParams is the request for an equal-area split, shared by the CLI
// command and the HTTP job.
type splitParams struct {
	Path      string  `json:"path"`
	SRID      int     `json:"srid"`
	Tolerance float64 `json:"tolerance"`
	OutDir    string  `json:"out_dir,omitempty"`
}

// splitResult is the job output.
type splitResult struct {
	CutY       float64 `json:"cut_y"`
	Ratio      float64 `json:"ratio"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	OutPath    string  `json:"out_path"`
}

var splitCmd = &cobra.Command{
	Use:   "split <shapefile>",
	Short: "Split a polygon layer into two equal-area halves",
	Long:  "Dissolves all polygons in the shapefile into one shape and bisects it along a latitude line so both halves have equal area, within tolerance.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := splitParams{Path: args[0]}
		params.SRID, _ = cmd.Flags().GetInt("srid")
		params.Tolerance, _ = cmd.Flags().GetFloat64("tolerance")
		params.OutDir, _ = cmd.Flags().GetString("out-dir")

		res, err := runSplit(cmd.Context(), params)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// runSplit reads the layer, dissolves it, runs the equal-area search, and
// writes both halves to a two-feature shapefile with a HALF attribute.
func runSplit(ctx context.Context, params splitParams) (*splitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features, _, err := layer.ReadShapefile(params.Path, params.SRID)
	if err != nil {
		return nil, err
	}

	geoms := make([]geom.T, 0, len(features))
	for _, f := range features {
		if f.Geom != nil {
			geoms = append(geoms, f.Geom)
		}
	}

	merged, err := split.Merge(geoms...)
	if err != nil {
		return nil, err
	}

	res, err := split.EqualArea(merged, split.Options{Tolerance: params.Tolerance})
	if err != nil {
		return nil, err
	}
	if !res.Converged {
		zap.L().Warn("split did not converge",
			zap.Float64("ratio", res.Ratio), zap.Int("iterations", res.Iterations))
	}

	outDir := params.OutDir
	if outDir == "" {
		outDir = filepath.Dir(params.Path)
	}
	base := strings.TrimSuffix(filepath.Base(params.Path), filepath.Ext(params.Path))
	outPath := filepath.Join(outDir, base+"_halves.shp")

	halfFields := []layer.Field{{Name: "HALF", Type: layer.FieldText, Length: 10}}
	halves := []layer.Feature{
		{Geom: res.South, Attrs: map[string]any{"HALF": "south"}},
		{Geom: res.North, Attrs: map[string]any{"HALF": "north"}},
	}
	if err := layer.WriteShapefile(outPath, layer.GeomPolygon, halfFields, halves); err != nil {
		return nil, err
	}

	return &splitResult{
		CutY:       res.CutY,
		Ratio:      res.Ratio,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		OutPath:    outPath,
	}, nil
}

func init() {
	splitCmd.Flags().Int("srid", 4326, "shapefile SRID")
	splitCmd.Flags().Float64("tolerance", 0.99, "minority/majority area ratio to reach")
	splitCmd.Flags().String("out-dir", "", "output directory (default: alongside input)")
	rootCmd.AddCommand(splitCmd)
}
