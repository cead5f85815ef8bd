package main

import (
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/assessment"
	"github.com/civic-gis/gis-cli/internal/layer"
)

var assessmentCmd = &cobra.Command{
	Use:   "assessment",
	Short: "Damage-assessment feature class",
}

var assessmentBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the assessment feature class from tax parcels",
	Long: `Snapshots the tax-parcel layer into a damage-assessment feature class:
parcel ownership and valuation plus blank inspection fields, every parcel
starting as Not Assessed. Optionally joins a zoning layer (by appraisal
account, falling back to parcel centroid) and a USNG grid layer, writes the
result as a shapefile and/or loads it into PostGIS, and writes an XLSX
value-at-risk summary.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts := assessment.Options{}
		opts.ParcelPath, _ = cmd.Flags().GetString("parcels")
		opts.SRID, _ = cmd.Flags().GetInt("srid")
		opts.ZonePath, _ = cmd.Flags().GetString("zoning")
		opts.ZoneField, _ = cmd.Flags().GetString("zone-field")
		opts.ZoneAccountField, _ = cmd.Flags().GetString("zone-account-field")
		opts.GridPath, _ = cmd.Flags().GetString("grid")
		opts.GridField, _ = cmd.Flags().GetString("grid-field")

		if opts.ParcelPath == "" {
			return eris.New("--parcels is required")
		}

		outPath, _ := cmd.Flags().GetString("out")
		reportPath, _ := cmd.Flags().GetString("report")
		if reportPath == "" && cfg.Assessment.ReportDir != "" {
			reportPath = filepath.Join(cfg.Assessment.ReportDir, "assessment_summary.xlsx")
		}
		loadPG, _ := cmd.Flags().GetBool("load")
		truncate, _ := cmd.Flags().GetBool("truncate")
		if outPath == "" && !loadPG {
			return eris.New("nothing to do: pass --out and/or --load")
		}

		res, err := assessment.Build(ctx, opts)
		if err != nil {
			return err
		}

		if outPath != "" {
			if err := layer.WriteShapefile(outPath, res.Layer.GeomType, res.Layer.Fields, res.Features); err != nil {
				return err
			}
			fmt.Printf("Wrote %d features to %s\n", len(res.Features), outPath)
		}

		if loadPG {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			pool, err := postgresPool(st)
			if err != nil {
				return err
			}

			n, err := layer.Load(ctx, pool, res.Layer, res.Features, layer.LoadOptions{
				Schema:      cfg.Loader.Schema,
				BatchSize:   cfg.Loader.BatchSize,
				Truncate:    truncate,
				Concurrency: cfg.Loader.Concurrency,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Loaded %d rows into %s.%s\n", n, cfg.Loader.Schema, res.Layer.Name)
		}

		if reportPath != "" {
			if err := assessment.WriteReport(reportPath, res.Layer, res.Features); err != nil {
				return err
			}
			fmt.Printf("Wrote summary report to %s\n", reportPath)
		}

		zap.L().Info("assessment build complete",
			zap.Int("parcels", res.Stats.Parcels),
			zap.Int("zone_joins", res.Stats.ZoneJoins),
			zap.Int("zone_spatial", res.Stats.ZoneSpatial),
			zap.Int("grid_joins", res.Stats.GridJoins),
		)
		return nil
	},
}

func init() {
	assessmentBuildCmd.Flags().String("parcels", "", "tax-parcel shapefile (required)")
	assessmentBuildCmd.Flags().Int("srid", 2276, "shapefile SRID")
	assessmentBuildCmd.Flags().String("zoning", "", "zoning shapefile")
	assessmentBuildCmd.Flags().String("zone-field", "", "zoning class attribute")
	assessmentBuildCmd.Flags().String("zone-account-field", "", "zoning account attribute (default ACCT_)")
	assessmentBuildCmd.Flags().String("grid", "", "USNG grid shapefile")
	assessmentBuildCmd.Flags().String("grid-field", "", "grid label attribute")
	assessmentBuildCmd.Flags().String("out", "", "output shapefile path")
	assessmentBuildCmd.Flags().String("report", "", "output XLSX summary path (default from config report_dir)")
	assessmentBuildCmd.Flags().Bool("load", false, "load the feature class into PostGIS")
	assessmentBuildCmd.Flags().Bool("truncate", false, "truncate the PostGIS table before loading")

	assessmentCmd.AddCommand(assessmentBuildCmd)
	rootCmd.AddCommand(assessmentCmd)
}
