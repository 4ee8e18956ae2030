// Package testutil provides testing utilities for the TDVMS client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/seismoworks/tdvms-client/pkg/catalog"
)

// Submission is one captured data request payload.
type Submission struct {
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

// MockTDVMS is a configurable mock of the catalog and submission
// endpoints for testing.
type MockTDVMS struct {
	server *httptest.Server
	mu     sync.Mutex

	// Catalog content
	Networks []catalog.Network
	Stations []catalog.Station

	// Response shaping
	NetworksStatus int           // 0 means 200
	StationsStatus int           // 0 means 200
	SubmitStatus   int           // 0 means 200
	SubmitResults  []int         // consumed per submission; empty means success (0)
	SubmitDelay    time.Duration // per-submission latency

	// Tracking
	RequestCount int
	Submissions  []Submission
}

// NewMockTDVMS starts a mock server.
func NewMockTDVMS() *MockTDVMS {
	mock := &MockTDVMS{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/Data/GetNetworks", mock.handleNetworks)
	mux.HandleFunc("/api/Data/GetStations", mock.handleStations)
	mux.HandleFunc("/GetData", mock.handleSubmit)

	mock.server = httptest.NewServer(mux)
	return mock
}

// URL returns the base URL of the mock server. It serves both the
// catalog and the submission endpoints.
func (m *MockTDVMS) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTDVMS) Close() {
	m.server.Close()
}

// SubmissionCount returns how many data requests were received.
func (m *MockTDVMS) SubmissionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Submissions)
}

// LastSubmission returns the most recent data request payload.
func (m *MockTDVMS) LastSubmission() Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Submissions[len(m.Submissions)-1]
}

func (m *MockTDVMS) handleNetworks(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	status := m.NetworksStatus
	networks := m.Networks
	m.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, networks)
}

func (m *MockTDVMS) handleStations(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	status := m.StationsStatus
	stations := m.Stations
	m.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, stations)
}

func (m *MockTDVMS) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub Submission
	_ = json.NewDecoder(r.Body).Decode(&sub)

	m.mu.Lock()
	m.RequestCount++
	m.Submissions = append(m.Submissions, sub)
	status := m.SubmitStatus
	result := 0
	if len(m.SubmitResults) > 0 {
		result = m.SubmitResults[0]
		m.SubmitResults = m.SubmitResults[1:]
	}
	delay := m.SubmitDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, map[string]int{"Result": result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.Write([]byte("[]"))
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
