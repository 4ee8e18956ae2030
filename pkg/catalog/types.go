package catalog

import "fmt"

// DeviceType identifies the kind of recording device at a station.
type DeviceType string

const (
	// DeviceHighGain is a high gain seismometer (code "H").
	DeviceHighGain DeviceType = "H"

	// DeviceLowGain is a low gain seismometer (code "L").
	DeviceLowGain DeviceType = "L"

	// DeviceAccelerometer is a strong-motion accelerometer (code "N").
	DeviceAccelerometer DeviceType = "N"
)

// DeviceTypes lists all known device types in precedence order.
// The order matters: DeviceCode resolves hybrid flag sets H > L > N.
var DeviceTypes = []DeviceType{DeviceHighGain, DeviceLowGain, DeviceAccelerometer}

// ParseDeviceType validates a single-letter device code.
func ParseDeviceType(s string) (DeviceType, error) {
	switch DeviceType(s) {
	case DeviceHighGain, DeviceLowGain, DeviceAccelerometer:
		return DeviceType(s), nil
	default:
		return "", fmt.Errorf("unknown device type: %q", s)
	}
}

// Network is one entry of the remote network list.
type Network struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Station is one entry of the remote station list. The service reports
// device availability as one boolean per device type plus one boolean per
// device component axis. A station with more than one device flag set is
// a hybrid station and must be expanded before filtering (see ExpandHybrids).
type Station struct {
	Network   string  `json:"network"`
	Code      string  `json:"code"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	DeviceH bool `json:"deviceH"`
	DeviceL bool `json:"deviceL"`
	DeviceN bool `json:"deviceN"`

	DeviceHZ bool `json:"deviceHZ"`
	DeviceHE bool `json:"deviceHE"`
	DeviceHN bool `json:"deviceHN"`
	DeviceLZ bool `json:"deviceLZ"`
	DeviceLE bool `json:"deviceLE"`
	DeviceLN bool `json:"deviceLN"`
	DeviceNZ bool `json:"deviceNZ"`
	DeviceNE bool `json:"deviceNE"`
	DeviceNN bool `json:"deviceNN"`
}

// FullName returns the station identity in "NETWORK.CODE" form, the format
// used by name selections.
func (s Station) FullName() string {
	return fmt.Sprintf("%s.%s", s.Network, s.Code)
}

// HasDevice reports whether the station carries the given device type.
func (s Station) HasDevice(t DeviceType) bool {
	switch t {
	case DeviceHighGain:
		return s.DeviceH
	case DeviceLowGain:
		return s.DeviceL
	case DeviceAccelerometer:
		return s.DeviceN
	default:
		return false
	}
}

// DeviceCount returns how many device flags are set.
func (s Station) DeviceCount() int {
	n := 0
	for _, t := range DeviceTypes {
		if s.HasDevice(t) {
			n++
		}
	}
	return n
}

// DeviceCode resolves the single device code of a station with precedence
// H > L > N. After hybrid expansion at most one flag is set, so the
// precedence only matters for unexpanded input. A station with no device
// flag at all indicates a catalog-shape assumption violation.
func (s Station) DeviceCode() (DeviceType, error) {
	for _, t := range DeviceTypes {
		if s.HasDevice(t) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: station %s has no device flag set", ErrNoDevice, s.FullName())
}

// withOnlyDevice returns a copy of the station with exactly one device
// type active, including its three component axes.
func (s Station) withOnlyDevice(t DeviceType) Station {
	out := s
	out.DeviceH, out.DeviceL, out.DeviceN = false, false, false
	out.DeviceHZ, out.DeviceHE, out.DeviceHN = false, false, false
	out.DeviceLZ, out.DeviceLE, out.DeviceLN = false, false, false
	out.DeviceNZ, out.DeviceNE, out.DeviceNN = false, false, false

	switch t {
	case DeviceHighGain:
		out.DeviceH = true
		out.DeviceHZ, out.DeviceHE, out.DeviceHN = true, true, true
	case DeviceLowGain:
		out.DeviceL = true
		out.DeviceLZ, out.DeviceLE, out.DeviceLN = true, true, true
	case DeviceAccelerometer:
		out.DeviceN = true
		out.DeviceNZ, out.DeviceNE, out.DeviceNN = true, true, true
	}
	return out
}
