package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/seismoworks/tdvms-client/internal/testutil"
	"github.com/seismoworks/tdvms-client/pkg/catalog"
	"github.com/seismoworks/tdvms-client/pkg/plan"
)

func newTestClient(t *testing.T, mock *testutil.MockTDVMS) *Client {
	t.Helper()
	c, err := New(Config{
		CatalogBaseURL: mock.URL(),
		SubmitBaseURL:  mock.URL(),
		CatalogTimeout: 5 * time.Second,
		SubmitTimeout:  5 * time.Second,
		UserAgent:      "tdvms-client-test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func testBatch(format plan.DataFormat) plan.Batch {
	return plan.Batch{
		Index:  0,
		Format: format,
		Stations: []catalog.Station{
			{Network: "TK", Code: "0213", DeviceH: true},
			{Network: "TK", Code: "0214", DeviceN: true},
		},
	}
}

func TestFetchNetworks(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()
	mock.Networks = []catalog.Network{
		{Code: "TK", Description: "Turkiye Strong Motion Network"},
		{Code: "KO", Description: "Kandilli Observatory"},
	}

	networks, err := newTestClient(t, mock).FetchNetworks(context.Background())
	if err != nil {
		t.Fatalf("FetchNetworks() error: %v", err)
	}
	if len(networks) != 2 || networks[0].Code != "TK" {
		t.Errorf("FetchNetworks() = %v", networks)
	}
}

func TestFetchNetworksServerError(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()
	mock.NetworksStatus = http.StatusInternalServerError

	_, err := newTestClient(t, mock).FetchNetworks(context.Background())
	var catErr *CatalogError
	if !errors.As(err, &catErr) {
		t.Fatalf("Expected CatalogError, got %v", err)
	}
	if catErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", catErr.StatusCode)
	}
}

func TestFetchStations(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()
	mock.Stations = []catalog.Station{
		{Network: "TK", Code: "0213", DeviceH: true, DeviceN: true},
	}

	stations, err := newTestClient(t, mock).FetchStations(context.Background(), []string{"TK"})
	if err != nil {
		t.Fatalf("FetchStations() error: %v", err)
	}
	// Raw catalog records come back unexpanded.
	if len(stations) != 1 || stations[0].DeviceCount() != 2 {
		t.Errorf("FetchStations() = %v", stations)
	}
}

func TestSubmitPayload(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()

	start := time.Date(2023, 2, 6, 1, 0, 0, 0, time.UTC)
	end := time.Date(2023, 2, 6, 3, 0, 0, 0, time.UTC)
	err := newTestClient(t, mock).Submit(context.Background(), testBatch(plan.FormatMiniSEED), start, end, "user@example.org")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	sub := mock.LastSubmission()
	if sub.StartTime != "2023-02-06 01:00:00" || sub.EndTime != "2023-02-06 03:00:00" {
		t.Errorf("Time window = %q .. %q", sub.StartTime, sub.EndTime)
	}
	if sub.DataType != "mseed" || sub.Instrument {
		t.Errorf("DataType = %q, Instrument = %v", sub.DataType, sub.Instrument)
	}
	if len(sub.Networks) != 2 || sub.Networks[0] != "TK" {
		t.Errorf("Networks = %v", sub.Networks)
	}
	if len(sub.Stations) != 2 || sub.Stations[1] != "0214" {
		t.Errorf("Stations = %v", sub.Stations)
	}
	// Device codes follow the H > L > N precedence per station.
	if len(sub.DeviceCodes) != 2 || sub.DeviceCodes[0] != "H" || sub.DeviceCodes[1] != "N" {
		t.Errorf("DeviceCodes = %v", sub.DeviceCodes)
	}
	for i, comps := range sub.Components {
		if len(comps) != 3 || comps[0] != "Z" || comps[1] != "N" || comps[2] != "E" {
			t.Errorf("Components[%d] = %v", i, comps)
		}
	}
	if len(sub.Location) != 2 || sub.Location[0] != nil {
		t.Errorf("Location = %v, want nulls", sub.Location)
	}
	if sub.Email != "user@example.org" {
		t.Errorf("Email = %q", sub.Email)
	}
}

func TestSubmitInventoryInstrument(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()

	err := newTestClient(t, mock).Submit(context.Background(), testBatch(plan.FormatInventory),
		time.Now(), time.Now().Add(time.Hour), "user@example.org")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	sub := mock.LastSubmission()
	if sub.DataType != "inventory" || !sub.Instrument {
		t.Errorf("DataType = %q, Instrument = %v, want inventory/true", sub.DataType, sub.Instrument)
	}
}

func TestSubmitResultCodes(t *testing.T) {
	tests := []struct {
		name       string
		result     int
		wantReason RetryReason
	}{
		{"busy", ResultBusy, ReasonBusy},
		{"general error", ResultGeneralError, ReasonServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockTDVMS()
			defer mock.Close()
			mock.SubmitResults = []int{tt.result}

			err := newTestClient(t, mock).Submit(context.Background(), testBatch(plan.FormatMiniSEED),
				time.Now(), time.Now().Add(time.Hour), "user@example.org")

			var retryable *RetryableError
			if !errors.As(err, &retryable) {
				t.Fatalf("Expected RetryableError, got %v", err)
			}
			if retryable.Reason != tt.wantReason {
				t.Errorf("Reason = %v, want %v", retryable.Reason, tt.wantReason)
			}
			if retryable.ResultCode != tt.result {
				t.Errorf("ResultCode = %d, want %d", retryable.ResultCode, tt.result)
			}
			if !IsRetryable(err) {
				t.Error("IsRetryable() = false")
			}
		})
	}
}

func TestSubmitUnknownResultIsSuccess(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()
	mock.SubmitResults = []int{42}

	err := newTestClient(t, mock).Submit(context.Background(), testBatch(plan.FormatMiniSEED),
		time.Now(), time.Now().Add(time.Hour), "user@example.org")
	if err != nil {
		t.Errorf("Submit() error: %v, unlisted result codes mean acceptance", err)
	}
}

func TestSubmitServerError(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()
	mock.SubmitStatus = http.StatusBadGateway

	err := newTestClient(t, mock).Submit(context.Background(), testBatch(plan.FormatMiniSEED),
		time.Now(), time.Now().Add(time.Hour), "user@example.org")

	var retryable *RetryableError
	if !errors.As(err, &retryable) {
		t.Fatalf("Expected RetryableError, got %v", err)
	}
	if retryable.Reason != ReasonServer {
		t.Errorf("Reason = %v, want ReasonServer", retryable.Reason)
	}
}

func TestSubmitTimeout(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()
	mock.SubmitDelay = 200 * time.Millisecond

	c := newTestClient(t, mock)
	c.config.SubmitTimeout = 20 * time.Millisecond

	err := c.Submit(context.Background(), testBatch(plan.FormatMiniSEED),
		time.Now(), time.Now().Add(time.Hour), "user@example.org")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("Timeouts are soft skips, not retry triggers")
	}
}

func TestSubmitConnectionError(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	mock.Close() // nothing listening

	c, err := New(Config{
		CatalogBaseURL: mock.URL(),
		SubmitBaseURL:  mock.URL(),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = c.Submit(context.Background(), testBatch(plan.FormatMiniSEED),
		time.Now(), time.Now().Add(time.Hour), "user@example.org")

	var retryable *RetryableError
	if !errors.As(err, &retryable) {
		t.Fatalf("Expected RetryableError, got %v", err)
	}
	if retryable.Reason != ReasonConnection {
		t.Errorf("Reason = %v, want ReasonConnection", retryable.Reason)
	}
}

func TestSubmitStationWithoutDevice(t *testing.T) {
	mock := testutil.NewMockTDVMS()
	defer mock.Close()

	b := plan.Batch{
		Format:   plan.FormatMiniSEED,
		Stations: []catalog.Station{{Network: "TK", Code: "BARE"}},
	}
	err := newTestClient(t, mock).Submit(context.Background(), b,
		time.Now(), time.Now().Add(time.Hour), "user@example.org")
	if !errors.Is(err, catalog.ErrNoDevice) {
		t.Fatalf("Expected ErrNoDevice, got %v", err)
	}
	if mock.SubmissionCount() != 0 {
		t.Error("No request should reach the server for an unsubmittable batch")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{SubmitBaseURL: "http://x"}); err == nil {
		t.Error("Missing catalog base URL should be rejected")
	}
	if _, err := New(Config{CatalogBaseURL: "http://x"}); err == nil {
		t.Error("Missing submit base URL should be rejected")
	}
}
