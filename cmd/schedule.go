package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/schedule"
	"github.com/civic-gis/gis-cli/internal/store"
	"github.com/civic-gis/gis-cli/pkg/geocode"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Waste-collection schedule lookup",
}

var scheduleLoadCmd = &cobra.Command{
	Use:   "load <shapefile>",
	Short: "Load the collection-zone layer into the store",
	Long:  "Reads the collection-zone polygons and their route, service-day, and recycle-week attributes into the store, replacing any previous load.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		srid, _ := cmd.Flags().GetInt("srid")
		fields := schedule.ZoneFields{}
		fields.ZoneID, _ = cmd.Flags().GetString("zone-field")
		fields.ServiceDay, _ = cmd.Flags().GetString("day-field")
		fields.RecycleWeek, _ = cmd.Flags().GetString("week-field")

		n, err := schedule.LoadZones(ctx, st, args[0], srid, fields)
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %d collection zones\n", n)
		return nil
	},
}

var scheduleLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up collection dates for an address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		svc, err := initScheduleService(st)
		if err != nil {
			return err
		}

		addr := geocode.AddressInput{}
		addr.Street, _ = cmd.Flags().GetString("street")
		addr.City, _ = cmd.Flags().GetString("city")
		addr.State, _ = cmd.Flags().GetString("state")
		addr.ZipCode, _ = cmd.Flags().GetString("zip")
		if addr.Street == "" {
			return eris.New("--street is required")
		}

		res, err := svc.Lookup(ctx, addr)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal lookup result")
		}
		fmt.Println(string(out))
		return nil
	},
}

// initScheduleService wires the store and geocoder into a lookup service.
// Used by both the lookup command and the HTTP service.
func initScheduleService(st store.Store) (*schedule.Service, error) {
	refMonday, err := time.Parse("2006-01-02", cfg.Schedule.RecycleReferenceMonday)
	if err != nil {
		return nil, eris.Wrapf(err, "parse recycle reference monday %q", cfg.Schedule.RecycleReferenceMonday)
	}
	if refMonday.Weekday() != time.Monday {
		zap.L().Warn("recycle reference date is not a Monday, using its week's Monday",
			zap.String("date", cfg.Schedule.RecycleReferenceMonday))
	}
	return schedule.NewService(st, initGeocoder(st), refMonday), nil
}

func init() {
	scheduleLoadCmd.Flags().Int("srid", 4326, "shapefile SRID")
	scheduleLoadCmd.Flags().String("zone-field", schedule.DefaultZoneFields.ZoneID, "zone id attribute")
	scheduleLoadCmd.Flags().String("day-field", schedule.DefaultZoneFields.ServiceDay, "service day attribute")
	scheduleLoadCmd.Flags().String("week-field", schedule.DefaultZoneFields.RecycleWeek, "recycle week attribute")

	scheduleLookupCmd.Flags().String("street", "", "street address")
	scheduleLookupCmd.Flags().String("city", "", "city")
	scheduleLookupCmd.Flags().String("state", "", "state")
	scheduleLookupCmd.Flags().String("zip", "", "zip code")

	scheduleCmd.AddCommand(scheduleLoadCmd)
	scheduleCmd.AddCommand(scheduleLookupCmd)
	rootCmd.AddCommand(scheduleCmd)
}
