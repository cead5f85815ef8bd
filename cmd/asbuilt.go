package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civic-gis/gis-cli/internal/asbuilt"
	"github.com/civic-gis/gis-cli/internal/layer"
)

var asbuiltCmd = &cobra.Command{
	Use:   "asbuilt",
	Short: "As-built engineering record bundles",
}

var asbuiltLocateCmd = &cobra.Command{
	Use:   "locate <shapefile>",
	Short: "Bundle the as-built drawings referenced by a layer",
	Long:  "Scans the layer's hyperlink attribute for as-built document ids, fetches each drawing from the archive, and zips what it finds. Missing drawings are reported, not fatal.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		srid, _ := cmd.Flags().GetInt("srid")
		features, _, err := layer.ReadShapefile(args[0], srid)
		if err != nil {
			return err
		}

		archiveURL, _ := cmd.Flags().GetString("archive")
		if archiveURL == "" {
			archiveURL = cfg.Asbuilt.ArchiveURL
		}
		if archiveURL == "" {
			return eris.New("--archive or asbuilt.archive_url is required")
		}

		archive, err := openArchive(archiveURL)
		if err != nil {
			return err
		}

		idField, _ := cmd.Flags().GetString("id-field")
		if idField == "" {
			idField = cfg.Asbuilt.IDField
		}

		outDir, _ := cmd.Flags().GetString("out-dir")
		if outDir == "" {
			outDir = cfg.Asbuilt.StagingDir
		}

		loc := asbuilt.NewLocator(archive, asbuilt.Options{IDField: idField})
		res, err := loc.Locate(ctx, features, outDir)
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

// openArchive treats ftp:// URLs as FTP archives and anything else as a
// local directory or mounted share.
func openArchive(rawURL string) (asbuilt.Archive, error) {
	if strings.HasPrefix(rawURL, "ftp://") {
		return asbuilt.NewFTPArchive(rawURL, asbuilt.FTPArchiveOptions{})
	}
	return asbuilt.NewDirArchive(rawURL), nil
}

func init() {
	asbuiltLocateCmd.Flags().Int("srid", 2276, "shapefile SRID")
	asbuiltLocateCmd.Flags().String("archive", "", "archive directory or ftp:// URL (default from config)")
	asbuiltLocateCmd.Flags().String("id-field", "", "hyperlink attribute (default from config)")
	asbuiltLocateCmd.Flags().String("out-dir", "", "staging and output directory (default from config)")

	asbuiltCmd.AddCommand(asbuiltLocateCmd)
	rootCmd.AddCommand(asbuiltCmd)
}
