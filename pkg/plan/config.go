// Package plan validates download configuration and freezes it into an
// immutable execution plan of station batches.
package plan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
)

// Time layouts accepted for starttime/endtime, tried in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// CircleSelection keeps stations within a distance band around an origin.
type CircleSelection struct {
	Latitude  float64
	Longitude float64
	MinDistKm float64
	MaxDistKm float64
}

// RectangleSelection keeps stations inside a geographic rectangle given
// by its north-west and south-east corners.
type RectangleSelection struct {
	NorthLatitude float64
	WestLongitude float64
	SouthLatitude float64
	EastLongitude float64
}

// Selection is the set of filters narrowing the station list. A nil or
// empty member means that filter is not applied. Filters are applied in
// a fixed order: circle, rectangle, name, device type.
type Selection struct {
	Circle      *CircleSelection
	Rectangle   *RectangleSelection
	Names       []string
	DeviceTypes []catalog.DeviceType
}

// Config is the validated download configuration. Construction goes
// through Load or LoadFile, which reject malformed input with ConfigError
// before any network activity happens.
type Config struct {
	Networks  []string
	Selection Selection
	Start     time.Time
	End       time.Time
	Formats   []DataFormat
	BatchSize int
}

type rawConfig struct {
	Networks   []string  `yaml:"networks"`
	Selection  yaml.Node `yaml:"selection"`
	Start      string    `yaml:"starttime"`
	End        string    `yaml:"endtime"`
	DataFormat yaml.Node `yaml:"data_format"`
	BatchSize  *int      `yaml:"batch_size"`
}

// LoadFile reads and validates a YAML configuration file. It also
// returns the raw file bytes, which callers hash for checkpoint drift
// detection, so the file is read exactly once.
func LoadFile(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Load(data)
	if err != nil {
		return nil, nil, err
	}
	return cfg, data, nil
}

// Load validates YAML configuration bytes into a Config.
func Load(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, configErrorf("not valid YAML: %v", err)
	}

	if len(raw.Networks) == 0 {
		return nil, configErrorf("at least one network code is required")
	}

	sel, err := parseSelection(&raw.Selection)
	if err != nil {
		return nil, err
	}

	start, err := parseTime("starttime", raw.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTime("endtime", raw.End)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, configErrorf("endtime %s is not after starttime %s",
			end.Format(timeLayouts[0]), start.Format(timeLayouts[0]))
	}

	formats, err := parseFormatNode(&raw.DataFormat)
	if err != nil {
		return nil, err
	}

	if raw.BatchSize == nil {
		return nil, configErrorf("batch_size is required")
	}
	if *raw.BatchSize <= 0 {
		return nil, configErrorf("batch_size must be a positive integer, got %d", *raw.BatchSize)
	}

	return &Config{
		Networks:  raw.Networks,
		Selection: sel,
		Start:     start,
		End:       end,
		Formats:   formats,
		BatchSize: *raw.BatchSize,
	}, nil
}

func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, configErrorf("%s is required", field)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, configErrorf("%s couldn't be parsed as a timestamp: %q", field, value)
}

func parseFormatNode(node *yaml.Node) ([]DataFormat, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, configErrorf("data_format: %v", err)
		}
		return parseFormats([]string{s})
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, configErrorf("data_format must be a list of format names: %v", err)
		}
		return parseFormats(list)
	case 0:
		return nil, configErrorf("data_format is required")
	default:
		return nil, configErrorf("data_format must be a string or a list")
	}
}

func parseSelection(node *yaml.Node) (Selection, error) {
	var sel Selection

	if node.Kind == 0 {
		return sel, configErrorf("selection is required and must be a mapping")
	}
	if node.Kind != yaml.MappingNode {
		return sel, configErrorf("selection must be a mapping of selection types")
	}

	// Mapping nodes store alternating key and value nodes.
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		var err error
		switch key {
		case "circle":
			sel.Circle, err = parseCircle(value)
		case "rectangle":
			sel.Rectangle, err = parseRectangle(value)
		case "name":
			sel.Names, err = parseStringOrList(key, value)
		case "device_type":
			sel.DeviceTypes, err = parseDeviceTypes(value)
		default:
			return sel, configErrorf("unknown selection type: %q", key)
		}
		if err != nil {
			return sel, err
		}
	}
	return sel, nil
}

func parseCircle(node *yaml.Node) (*CircleSelection, error) {
	var raw struct {
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		MinDistKm *float64 `yaml:"min_dist_km"`
		MaxDistKm *float64 `yaml:"max_dist_km"`
	}
	if node.Kind != yaml.MappingNode || node.Decode(&raw) != nil {
		return nil, configErrorf("circle selection needs latitude, longitude, min_dist_km, and max_dist_km arguments")
	}
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"latitude", raw.Latitude},
		{"longitude", raw.Longitude},
		{"min_dist_km", raw.MinDistKm},
		{"max_dist_km", raw.MaxDistKm},
	} {
		if f.value == nil {
			return nil, configErrorf("circle selection needs argument: %s", f.name)
		}
	}
	return &CircleSelection{
		Latitude:  *raw.Latitude,
		Longitude: *raw.Longitude,
		MinDistKm: *raw.MinDistKm,
		MaxDistKm: *raw.MaxDistKm,
	}, nil
}

func parseRectangle(node *yaml.Node) (*RectangleSelection, error) {
	var raw struct {
		NorthLatitude *float64 `yaml:"north_latitude"`
		WestLongitude *float64 `yaml:"west_longitude"`
		SouthLatitude *float64 `yaml:"south_latitude"`
		EastLongitude *float64 `yaml:"east_longitude"`
	}
	if node.Kind != yaml.MappingNode || node.Decode(&raw) != nil {
		return nil, configErrorf("rectangle selection needs north_latitude, west_longitude, south_latitude, and east_longitude arguments")
	}
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"north_latitude", raw.NorthLatitude},
		{"west_longitude", raw.WestLongitude},
		{"south_latitude", raw.SouthLatitude},
		{"east_longitude", raw.EastLongitude},
	} {
		if f.value == nil {
			return nil, configErrorf("rectangle selection needs argument: %s", f.name)
		}
	}
	return &RectangleSelection{
		NorthLatitude: *raw.NorthLatitude,
		WestLongitude: *raw.WestLongitude,
		SouthLatitude: *raw.SouthLatitude,
		EastLongitude: *raw.EastLongitude,
	}, nil
}

// parseStringOrList accepts either a single scalar or a list of strings.
func parseStringOrList(field string, node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, configErrorf("%s selection: %v", field, err)
		}
		return []string{s}, nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, configErrorf("%s selection should be a list of names: %v", field, err)
		}
		if len(list) == 0 {
			return nil, configErrorf("%s selection should be a non-empty list", field)
		}
		return list, nil
	default:
		return nil, configErrorf("%s selection should be a name or a list of names", field)
	}
}

func parseDeviceTypes(node *yaml.Node) ([]catalog.DeviceType, error) {
	codes, err := parseStringOrList("device_type", node)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.DeviceType, 0, len(codes))
	for _, code := range codes {
		t, err := catalog.ParseDeviceType(code)
		if err != nil {
			return nil, configErrorf("device_type selection: %v", err)
		}
		out = append(out, t)
	}
	return out, nil
}
