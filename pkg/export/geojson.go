// Package export writes selected stations as GeoJSON so they can be
// inspected in external map tooling before a download run.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
)

type feature struct {
	Type       string         `json:"type"`
	Geometry   geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

// WriteStations writes one point feature per station. The optional
// groups argument annotates each station with the index of the batch
// group containing it, so the partition is visible on a map.
func WriteStations(w io.Writer, stations []catalog.Station, groups [][]catalog.Station) error {
	groupOf := make(map[string]int)
	for i, group := range groups {
		for _, sta := range group {
			key := groupKey(sta)
			if _, seen := groupOf[key]; !seen {
				groupOf[key] = i
			}
		}
	}

	fc := featureCollection{Type: "FeatureCollection"}
	for _, sta := range stations {
		props := map[string]any{
			"network": sta.Network,
			"code":    sta.Code,
			"name":    sta.FullName(),
		}
		if device, err := sta.DeviceCode(); err == nil {
			props["device"] = string(device)
		}
		if group, ok := groupOf[groupKey(sta)]; ok {
			props["batch_group"] = group
		}
		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			Geometry: geometry{
				Type: "Point",
				// GeoJSON wants longitude first.
				Coordinates: [2]float64{sta.Longitude, sta.Latitude},
			},
			Properties: props,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}

// WriteStationsFile writes the stations to a GeoJSON file.
func WriteStationsFile(path string, stations []catalog.Station, groups [][]catalog.Station) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteStations(f, stations, groups); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// groupKey identifies a logical station within a partition. Device code
// is part of the identity because hybrid expansion produces several
// logical stations per physical one.
func groupKey(sta catalog.Station) string {
	device, _ := sta.DeviceCode()
	return sta.FullName() + ":" + string(device)
}
