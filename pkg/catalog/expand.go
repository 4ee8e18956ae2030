package catalog

// ExpandHybrids explodes every hybrid station (more than one device flag
// set) into one synthetic station per active device type. Each synthetic
// station keeps all other attributes and activates only its own device
// flag plus that device's three component flags. Stations with a single
// device type pass through unchanged.
//
// The remote service accepts only one device code per requested station,
// so hybrid stations must be requested as if they were distinct stations.
// Expansion has to happen before any filtering: the device-type filter
// and the per-batch device-code derivation both assume at most one active
// device type per record.
func ExpandHybrids(stations []Station) []Station {
	out := make([]Station, 0, len(stations))
	for _, sta := range stations {
		if sta.DeviceCount() <= 1 {
			out = append(out, sta)
			continue
		}
		for _, t := range DeviceTypes {
			if sta.HasDevice(t) {
				out = append(out, sta.withOnlyDevice(t))
			}
		}
	}
	return out
}
