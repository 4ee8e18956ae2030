// Package filter provides pure selection predicates over station lists.
//
// Filters narrow a candidate list and never mutate their input. They are
// applied sequentially, so composing several filters is a set
// intersection of the individual results.
package filter

import (
	"fmt"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
)

// ByNetworks keeps stations whose network code is in the given set.
func ByNetworks(stations []catalog.Station, networks []string) []catalog.Station {
	set := make(map[string]struct{}, len(networks))
	for _, n := range networks {
		set[n] = struct{}{}
	}

	var out []catalog.Station
	for _, sta := range stations {
		if _, ok := set[sta.Network]; ok {
			out = append(out, sta)
		}
	}
	return out
}

// ByCircle keeps stations whose geodesic distance from the origin lies in
// [minKm, maxKm]. Distances use the Vincenty inverse formula on WGS84.
func ByCircle(stations []catalog.Station, originLat, originLon, minKm, maxKm float64) ([]catalog.Station, error) {
	var out []catalog.Station
	for _, sta := range stations {
		distM, err := GeodesicDistance(originLat, originLon, sta.Latitude, sta.Longitude)
		if err != nil {
			return nil, fmt.Errorf("distance to %s: %w", sta.FullName(), err)
		}
		distKm := distM / 1000.0
		if minKm <= distKm && distKm <= maxKm {
			out = append(out, sta)
		}
	}
	return out, nil
}

// ByRectangle keeps stations inside the rectangle defined by its
// north-west and south-east corners. Rectangles spanning the ±180°
// meridian are not supported.
func ByRectangle(stations []catalog.Station, north, west, south, east float64) []catalog.Station {
	var out []catalog.Station
	for _, sta := range stations {
		if west <= sta.Longitude && sta.Longitude <= east &&
			south <= sta.Latitude && sta.Latitude <= north {
			out = append(out, sta)
		}
	}
	return out
}

// ByNames keeps stations whose "NETWORK.CODE" name is in the given list.
func ByNames(stations []catalog.Station, names []string) []catalog.Station {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	var out []catalog.Station
	for _, sta := range stations {
		if _, ok := set[sta.FullName()]; ok {
			out = append(out, sta)
		}
	}
	return out
}

// ByDeviceTypes keeps stations carrying at least one of the requested
// device types. A station matching several requested types is emitted
// once; post-expansion records carry a single type anyway, so the
// de-duplication only matters for unexpanded input.
func ByDeviceTypes(stations []catalog.Station, types []catalog.DeviceType) []catalog.Station {
	var out []catalog.Station
	for _, sta := range stations {
		for _, t := range types {
			if sta.HasDevice(t) {
				out = append(out, sta)
				break
			}
		}
	}
	return out
}
