package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
)

type fakeFetcher struct {
	networks []catalog.Network
	stations []catalog.Station
}

func (f *fakeFetcher) FetchNetworks(context.Context) ([]catalog.Network, error) {
	return f.networks, nil
}

func (f *fakeFetcher) FetchStations(context.Context, []string) ([]catalog.Station, error) {
	return f.stations, nil
}

func planFetcher(stationCount int) *fakeFetcher {
	f := &fakeFetcher{
		networks: []catalog.Network{{Code: "TK"}, {Code: "KO"}},
	}
	for i := 0; i < stationCount; i++ {
		f.stations = append(f.stations, catalog.Station{
			Network:   "TK",
			Code:      fmt.Sprintf("S%03d", i),
			Latitude:  37.5,
			Longitude: 37.5,
			DeviceH:   true,
		})
	}
	return f
}

func planConfig(batchSize int, formats ...DataFormat) *Config {
	return &Config{
		Networks:  []string{"TK"},
		Start:     time.Date(2023, 2, 6, 1, 0, 0, 0, time.UTC),
		End:       time.Date(2023, 2, 6, 3, 0, 0, 0, time.UTC),
		Formats:   formats,
		BatchSize: batchSize,
	}
}

func TestBuildPartitionsPerFormat(t *testing.T) {
	svc := catalog.NewService(planFetcher(120), nil, false)
	cfg := planConfig(50, FormatMiniSEED, FormatInventory)

	p, err := cfg.Build(context.Background(), svc)
	require.NoError(t, err)

	assert.Equal(t, 3, p.Partitions)
	require.Equal(t, 6, p.Total())
	assert.Len(t, p.Stations, 120)

	for i, b := range p.Batches {
		assert.Equal(t, i, b.Index)
		assert.Len(t, b.Stations, 40)
	}

	// The partition sequence repeats once per format, in config order.
	for i := 0; i < 3; i++ {
		assert.Equal(t, FormatMiniSEED, p.Batches[i].Format)
		assert.Equal(t, FormatInventory, p.Batches[i+3].Format)
		assert.Equal(t, p.Batches[i].Stations, p.Batches[i+3].Stations)
	}
}

func TestBuildInvalidNetworkCode(t *testing.T) {
	svc := catalog.NewService(planFetcher(10), nil, false)
	cfg := planConfig(50, FormatMiniSEED)
	cfg.Networks = []string{"XX"}

	_, err := cfg.Build(context.Background(), svc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), `invalid network code: "XX"`)
}

func TestBuildAppliesSelection(t *testing.T) {
	fetcher := planFetcher(4)
	fetcher.stations[1].Latitude = 40.0 // outside the rectangle
	fetcher.stations[2].DeviceH = false
	fetcher.stations[2].DeviceN = true // wrong device type
	svc := catalog.NewService(fetcher, nil, false)

	cfg := planConfig(50, FormatMiniSEED)
	cfg.Selection = Selection{
		Rectangle: &RectangleSelection{
			NorthLatitude: 38.0,
			WestLongitude: 37.0,
			SouthLatitude: 37.0,
			EastLongitude: 38.0,
		},
		DeviceTypes: []catalog.DeviceType{catalog.DeviceHighGain},
	}

	p, err := cfg.Build(context.Background(), svc)
	require.NoError(t, err)

	require.Len(t, p.Stations, 2)
	assert.Equal(t, "S000", p.Stations[0].Code)
	assert.Equal(t, "S003", p.Stations[1].Code)
}

func TestBuildRestrictsToRequestedNetworks(t *testing.T) {
	fetcher := planFetcher(2)
	fetcher.stations[1].Network = "KO"
	svc := catalog.NewService(fetcher, nil, false)

	p, err := planConfig(50, FormatMiniSEED).Build(context.Background(), svc)
	require.NoError(t, err)

	require.Len(t, p.Stations, 1)
	assert.Equal(t, "TK", p.Stations[0].Network)
}

func TestBuildEmptySelection(t *testing.T) {
	svc := catalog.NewService(planFetcher(3), nil, false)
	cfg := planConfig(50, FormatMiniSEED)
	cfg.Selection.Names = []string{"TK.NOPE"}

	p, err := cfg.Build(context.Background(), svc)
	require.NoError(t, err)

	assert.Zero(t, p.Total())
	assert.Zero(t, p.Partitions)
	assert.Empty(t, p.Stations)
}
