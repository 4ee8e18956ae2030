package plan

import (
	"context"
	"time"

	"github.com/seismoworks/tdvms-client/pkg/batch"
	"github.com/seismoworks/tdvms-client/pkg/catalog"
	"github.com/seismoworks/tdvms-client/pkg/filter"
	"github.com/seismoworks/tdvms-client/pkg/logging"
)

// Batch is one unit of remote submission: a bounded group of stations
// paired with the data format to request for them. The format lives on
// the batch itself rather than being recovered from index arithmetic.
type Batch struct {
	Index    int
	Stations []catalog.Station
	Format   DataFormat
}

// Plan is the frozen, ordered list of batches for one run. The
// checkpoint addresses plan position, so the order is significant and a
// Plan is never mutated after Build.
type Plan struct {
	Batches    []Batch
	Stations   []catalog.Station // the filtered station list, pre-partition
	Partitions int               // station groups per data format
	Start      time.Time
	End        time.Time
}

// Total returns the number of batches in the plan.
func (p *Plan) Total() int {
	return len(p.Batches)
}

// Build resolves the configuration into a Plan: it validates the
// requested network codes against the catalog, fetches and filters the
// station list, partitions it, and repeats the partition sequence once
// per requested data format. The result is deterministic given the
// catalog content, the selection, and the batch size.
func (c *Config) Build(ctx context.Context, svc *catalog.Service) (*Plan, error) {
	logger := logging.NewLogger("plan")

	networks, err := svc.Networks(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(networks))
	for _, net := range networks {
		known[net.Code] = struct{}{}
	}
	for _, code := range c.Networks {
		if _, ok := known[code]; !ok {
			return nil, configErrorf("invalid network code: %q", code)
		}
	}

	stations, err := svc.Stations(ctx, c.Networks)
	if err != nil {
		return nil, err
	}

	// The remote service is not trusted to honor the network restriction
	// exactly, so restrict explicitly even after a per-network fetch.
	stations = filter.ByNetworks(stations, c.Networks)

	if sel := c.Selection.Circle; sel != nil {
		stations, err = filter.ByCircle(stations, sel.Latitude, sel.Longitude, sel.MinDistKm, sel.MaxDistKm)
		if err != nil {
			return nil, err
		}
	}
	if sel := c.Selection.Rectangle; sel != nil {
		stations = filter.ByRectangle(stations, sel.NorthLatitude, sel.WestLongitude, sel.SouthLatitude, sel.EastLongitude)
	}
	if len(c.Selection.Names) > 0 {
		stations = filter.ByNames(stations, c.Selection.Names)
	}
	if len(c.Selection.DeviceTypes) > 0 {
		stations = filter.ByDeviceTypes(stations, c.Selection.DeviceTypes)
	}

	groups := batch.Partition(stations, c.BatchSize)

	p := &Plan{
		Stations:   stations,
		Partitions: len(groups),
		Start:      c.Start,
		End:        c.End,
	}
	for _, format := range c.Formats {
		for _, group := range groups {
			p.Batches = append(p.Batches, Batch{
				Index:    len(p.Batches),
				Stations: group,
				Format:   format,
			})
		}
	}

	logger.Info().
		Int("stations", len(stations)).
		Int("partitions", len(groups)).
		Int("formats", len(c.Formats)).
		Int("batches", len(p.Batches)).
		Msg("Download plan built")

	return p, nil
}
