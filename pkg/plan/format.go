package plan

import "strings"

// DataFormat is one of the archive formats the service can deliver.
type DataFormat string

const (
	// FormatMiniSEED is waveform data in miniSEED format.
	FormatMiniSEED DataFormat = "mseed"

	// FormatFullSEED is waveform data plus metadata in full SEED format.
	FormatFullSEED DataFormat = "fseed"

	// FormatInventory is station metadata only.
	FormatInventory DataFormat = "inventory"
)

// DataFormats lists every recognized format.
var DataFormats = []DataFormat{FormatMiniSEED, FormatFullSEED, FormatInventory}

// Instrument reports whether the remote submission must set the
// instrument flag, which the service expects for inventory requests.
func (f DataFormat) Instrument() bool {
	return f == FormatInventory
}

func parseFormat(s string) (DataFormat, error) {
	f := DataFormat(strings.TrimSpace(s))
	for _, known := range DataFormats {
		if f == known {
			return f, nil
		}
	}
	return "", configErrorf("unrecognized data format: %q", s)
}

// parseFormats accepts a single format, a comma-separated list, or an
// already split list of format names.
func parseFormats(values []string) ([]DataFormat, error) {
	var out []DataFormat
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			f, err := parseFormat(part)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, configErrorf("at least one data format is required")
	}
	return out, nil
}
