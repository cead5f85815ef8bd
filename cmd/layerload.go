package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/db"
	"github.com/civic-gis/gis-cli/internal/layer"
)

var layerCmd = &cobra.Command{
	Use:   "layer",
	Short: "PostGIS layer loads",
}

var layerLoadCmd = &cobra.Command{
	Use:   "load <shapefile>",
	Short: "Bulk-load a shapefile into PostGIS",
	Long:  "Reads the shapefile, creates the target table from its dbf schema if needed, and COPYs the features into PostGIS in batches.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pool, err := postgresPool(st)
		if err != nil {
			return err
		}

		srid, _ := cmd.Flags().GetInt("srid")
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = tableNameFromPath(args[0])
		}

		features, fields, err := layer.ReadShapefile(args[0], srid)
		if err != nil {
			return err
		}
		if len(features) == 0 {
			return eris.Errorf("%s contains no loadable features", args[0])
		}

		l := &layer.Layer{
			Name:     name,
			GeomType: geomTypeOf(features),
			SRID:     srid,
			Fields:   fields,
		}

		truncate, _ := cmd.Flags().GetBool("truncate")
		keyColumn, _ := cmd.Flags().GetString("key")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if batchSize == 0 {
			batchSize = cfg.Loader.BatchSize
		}

		log := zap.L().With(zap.String("command", "layer load"))
		log.Info("starting layer load",
			zap.String("table", name),
			zap.Int("features", len(features)),
			zap.Int("srid", srid),
			zap.Bool("truncate", truncate),
		)

		n, err := layer.Load(ctx, pool, l, features, layer.LoadOptions{
			Schema:      cfg.Loader.Schema,
			BatchSize:   batchSize,
			Truncate:    truncate,
			Concurrency: cfg.Loader.Concurrency,
			KeyColumn:   keyColumn,
		})
		if err != nil {
			return eris.Wrap(err, "layer load")
		}

		fmt.Printf("Loaded %d rows into %s.%s\n", n, cfg.Loader.Schema, name)
		return nil
	},
}

var layerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loaded layers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pool, err := postgresPool(st)
		if err != nil {
			return err
		}

		return printLayerStatus(ctx, pool)
	},
}

// printLayerStatus displays the load_status bookkeeping table.
func printLayerStatus(ctx context.Context, pool db.Pool) error {
	status, err := layer.LoadStatus(ctx, pool, cfg.Loader.Schema)
	if err != nil {
		return eris.Wrap(err, "layer status")
	}

	if len(status) == 0 {
		fmt.Println("No layers loaded yet")
		return nil
	}

	fmt.Printf("%-25s %10s %12s %s\n", "Layer", "Rows", "Duration", "Loaded At")
	fmt.Println(strings.Repeat("-", 70))

	for _, s := range status {
		fmt.Printf("%-25s %10d %10dms %s\n",
			s.LayerName, s.RowCount, s.DurationMs, s.LoadedAt.Format("2006-01-02 15:04"))
	}

	return nil
}

// tableNameFromPath derives a table name from the shapefile base name.
func tableNameFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.ToLower(strings.ReplaceAll(base, "-", "_"))
}

// geomTypeOf inspects the first feature for the layer geometry type.
func geomTypeOf(features []layer.Feature) layer.GeomType {
	for _, f := range features {
		if f.Geom == nil {
			continue
		}
		return layer.GeomTypeOf(f.Geom)
	}
	return layer.GeomPolygon
}

func init() {
	layerLoadCmd.Flags().Int("srid", 2276, "shapefile SRID")
	layerLoadCmd.Flags().String("name", "", "target table name (default: shapefile base name)")
	layerLoadCmd.Flags().Bool("truncate", false, "truncate existing rows before loading")
	layerLoadCmd.Flags().String("key", "", "upsert on this attribute instead of plain COPY")
	layerLoadCmd.Flags().Int("batch-size", 0, "COPY batch size (default from config)")

	layerCmd.AddCommand(layerLoadCmd)
	layerCmd.AddCommand(layerStatusCmd)
	rootCmd.AddCommand(layerCmd)
}
