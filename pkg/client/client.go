// Package client implements the HTTP client for the TDVMS continuous
// data service: catalog listing and asynchronous, email-fulfilled data
// requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
	"github.com/seismoworks/tdvms-client/pkg/logging"
	"github.com/seismoworks/tdvms-client/pkg/plan"
)

// Prometheus metrics for remote service operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tdvms_requests_total",
		Help: "Total remote requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tdvms_request_duration_seconds",
		Help:    "Remote request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	submissionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tdvms_submission_results_total",
		Help: "Submission outcomes by result (success, busy, error, timeout, connection)",
	}, []string{"result"})
)

// The wire timestamp layout of the submission endpoint.
const submitTimeLayout = "2006-01-02 15:04:05"

// Config holds the client configuration.
type Config struct {
	// CatalogBaseURL is the base URL of the catalog API.
	CatalogBaseURL string

	// SubmitBaseURL is the base URL of the data request service.
	SubmitBaseURL string

	// CatalogTimeout bounds catalog fetches.
	CatalogTimeout time.Duration

	// SubmitTimeout bounds data request submissions. Zero disables the
	// bound; a submission that exceeds it maps to ErrTimeout.
	SubmitTimeout time.Duration

	// UserAgent identifies this client to the service.
	UserAgent string
}

// DefaultConfig returns the production endpoints with sane timeouts.
func DefaultConfig() Config {
	return Config{
		CatalogBaseURL: "https://tdvms.afad.gov.tr",
		SubmitBaseURL:  "https://tdvmservis.afad.gov.tr",
		CatalogTimeout: 30 * time.Second,
		SubmitTimeout:  60 * time.Second,
		UserAgent:      "tdvms-client/1.0",
	}
}

// Client talks to the TDVMS service. It implements catalog.Fetcher and
// the orchestrator's Submitter boundary.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a TDVMS client.
func New(cfg Config) (*Client, error) {
	if cfg.CatalogBaseURL == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if cfg.SubmitBaseURL == "" {
		return nil, fmt.Errorf("submit base URL is required")
	}

	return &Client{
		// Timeouts are applied per call through the context, since
		// catalog and submission bounds differ.
		httpClient: &http.Client{},
		config:     cfg,
		logger:     logging.NewLogger("tdvms-client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// FetchNetworks returns all networks known to the service.
func (c *Client) FetchNetworks(ctx context.Context) ([]catalog.Network, error) {
	var networks []catalog.Network
	if err := c.getJSON(ctx, "/api/Data/GetNetworks", &networks); err != nil {
		return nil, err
	}
	return networks, nil
}

// FetchStations returns the raw station list of the given networks.
// Hybrid stations are not expanded here; catalog.Service does that.
func (c *Client) FetchStations(ctx context.Context, networkCodes []string) ([]catalog.Station, error) {
	body := map[string]any{
		"netcodes":   networkCodes,
		"deviceCode": "",
		"component":  "",
	}

	var stations []catalog.Station
	if err := c.postJSON(ctx, "/api/Data/GetStations", body, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// submitPayload is the wire format of the data request endpoint.
type submitPayload struct {
	StartTime   string     `json:"start_time"`
	EndTime     string     `json:"end_time"`
	DataType    string     `json:"data_type"`
	Instrument  bool       `json:"instrument"`
	Networks    []string   `json:"networks"`
	Stations    []string   `json:"stations"`
	Location    []*string  `json:"location"`
	DeviceCodes []string   `json:"device_codes"`
	Components  [][]string `json:"components"`
	Email       string     `json:"e_mail"`
}

type submitResponse struct {
	Result int `json:"Result"`
}

// Submit requests one batch by email. Per station it derives the network
// code, the station code, a single device code (precedence H > L > N),
// and the fixed three-component list [Z, N, E]. Locations are always
// null on this endpoint.
//
// Error mapping: result 111 and 110, non-200 responses, and connection
// failures return a RetryableError; an elapsed SubmitTimeout returns
// ErrTimeout (soft no-op for the caller). A station with no device flag
// returns a fatal error wrapping catalog.ErrNoDevice.
func (c *Client) Submit(ctx context.Context, b plan.Batch, start, end time.Time, email string) error {
	payload := submitPayload{
		StartTime:   start.Format(submitTimeLayout),
		EndTime:     end.Format(submitTimeLayout),
		DataType:    string(b.Format),
		Instrument:  b.Format.Instrument(),
		Networks:    make([]string, 0, len(b.Stations)),
		Stations:    make([]string, 0, len(b.Stations)),
		Location:    make([]*string, len(b.Stations)),
		DeviceCodes: make([]string, 0, len(b.Stations)),
		Components:  make([][]string, 0, len(b.Stations)),
		Email:       email,
	}
	for _, sta := range b.Stations {
		device, err := sta.DeviceCode()
		if err != nil {
			return err
		}
		payload.Networks = append(payload.Networks, sta.Network)
		payload.Stations = append(payload.Stations, sta.Code)
		payload.DeviceCodes = append(payload.DeviceCodes, string(device))
		payload.Components = append(payload.Components, []string{"Z", "N", "E"})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	if c.config.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.SubmitTimeout)
		defer cancel()
	}

	endpoint := "/GetData"
	began := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(began).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.SubmitBaseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Int("batch", b.Index).
		Str("format", string(b.Format)).
		Int("stations", len(b.Stations)).
		Msg("Submitting data request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			submissionResults.WithLabelValues("timeout").Inc()
			requestsTotal.WithLabelValues(endpoint, "timeout").Inc()
			return ErrTimeout
		}
		submissionResults.WithLabelValues("connection").Inc()
		requestsTotal.WithLabelValues(endpoint, "connection_error").Inc()
		return &RetryableError{Reason: ReasonConnection, Message: "connection failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		submissionResults.WithLabelValues("error").Inc()
		return &RetryableError{
			Reason:  ReasonServer,
			Message: fmt.Sprintf("data request failed with status code %d", resp.StatusCode),
		}
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		submissionResults.WithLabelValues("error").Inc()
		return &RetryableError{Reason: ReasonServer, Message: "undecodable response", Err: err}
	}

	switch result.Result {
	case ResultBusy:
		submissionResults.WithLabelValues("busy").Inc()
		return &RetryableError{
			Reason:     ReasonBusy,
			ResultCode: result.Result,
			Message:    "previous request still pending",
		}
	case ResultGeneralError:
		submissionResults.WithLabelValues("error").Inc()
		return &RetryableError{
			Reason:     ReasonServer,
			ResultCode: result.Result,
			Message:    "general error",
		}
	default:
		submissionResults.WithLabelValues("success").Inc()
		c.logger.Info().
			Int("batch", b.Index).
			Int("result_code", result.Result).
			Msg("Data request accepted, fulfillment arrives by email")
		return nil
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.catalogCall(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.catalogCall(ctx, http.MethodPost, endpoint, data, out)
}

func (c *Client) catalogCall(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if c.config.CatalogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CatalogTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.CatalogBaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		return &CatalogError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
