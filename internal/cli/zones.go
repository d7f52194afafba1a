package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"bookingsync/internal/geo"
	"bookingsync/internal/models"
	"bookingsync/internal/remote"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// LoadZoneFile reads the seed zone catalog used when the booking API cannot
// provide one. An empty path yields no zones.
func LoadZoneFile(path string) ([]models.ServiceZone, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}

	var file struct {
		Zones []models.ServiceZone `yaml:"zones"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse zones file %s: %w", path, err)
	}
	if err := validateZones(file.Zones); err != nil {
		return nil, fmt.Errorf("zones file %s: %w", path, err)
	}
	return file.Zones, nil
}

func validateZones(zones []models.ServiceZone) error {
	seen := make(map[string]bool, len(zones))
	for i, z := range zones {
		if z.ID == "" {
			return fmt.Errorf("zone %d has no id", i)
		}
		if seen[z.ID] {
			return fmt.Errorf("duplicate zone id %q", z.ID)
		}
		seen[z.ID] = true
		// Fewer than three vertices leaves the zone unconstrained.
		if len(z.Polygon) > 0 && !geo.Constrained(z.Polygon) {
			return fmt.Errorf("zone %q polygon needs at least 3 points", z.ID)
		}
		for _, p := range z.Polygon {
			if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
				return fmt.Errorf("zone %q has an out of range point %v", z.ID, p)
			}
		}
	}
	return nil
}

// loadZones prefers the live catalog and falls back to the seed file.
func loadZones(ctx context.Context, client *remote.Client, seed []models.ServiceZone, logger *zerolog.Logger) []models.ServiceZone {
	if client == nil {
		return seed
	}
	zones, err := client.ListZones(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Zone catalog unavailable, using zones file")
		return seed
	}
	if len(zones) == 0 {
		return seed
	}
	return zones
}

// NewZonesCommand groups zone catalog helpers.
func NewZonesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Inspect service zones",
	}
	cmd.AddCommand(newZonesCheckCommand(rootOpts))
	return cmd
}

func newZonesCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		lat, lng  float64
		file      string
		useRemote bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report which service zone contains a coordinate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
				return fmt.Errorf("coordinate %v,%v is out of range", lat, lng)
			}

			var zones []models.ServiceZone
			if file != "" && !useRemote {
				z, err := LoadZoneFile(file)
				if err != nil {
					return err
				}
				zones = z
			} else {
				rt, err := newRuntime(rootOpts)
				if err != nil {
					return err
				}
				defer rt.Close()

				seed, err := LoadZoneFile(rt.cfg.Wizard.ZonesFile)
				if err != nil {
					return err
				}
				if !useRemote {
					zones = seed
				} else {
					ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
					defer cancel()
					zones = loadZones(ctx, rt.remote, seed, rt.logger)
				}
			}

			out := cmd.OutOrStdout()
			point := models.LatLng{Lat: lat, Lng: lng}
			switch {
			case !geo.AnyConstrained(zones):
				fmt.Fprintln(out, "no zone constraints: any location is accepted")
			default:
				if zone, ok := geo.FindZone(point, zones); ok {
					fmt.Fprintf(out, "inside zone %s (%s)\n", zone.ID, zone.Name)
				} else {
					fmt.Fprintln(out, "outside every service zone: a manual address is required")
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&file, "file", "", "zones file (default wizard.zones_file)")
	cmd.Flags().BoolVar(&useRemote, "remote", false, "check against the live zone catalog")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}
