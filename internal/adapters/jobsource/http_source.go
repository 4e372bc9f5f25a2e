package jobsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// HTTPSource fetches the day's jobs from the record store's REST API
type HTTPSource struct {
	client   *client
	location *time.Location
	logger   *logrus.Logger
}

// NewHTTPSource creates a job source for the record store at cfg.BaseURL.
// Timestamps without a zone are interpreted in loc.
func NewHTTPSource(cfg ClientConfig, loc *time.Location, logger *logrus.Logger) (*HTTPSource, error) {
	if logger == nil {
		logger = discardLogger()
	}
	c, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &HTTPSource{client: c, location: loc, logger: logger}, nil
}

// FetchJobs retrieves all jobs scheduled for date
func (s *HTTPSource) FetchJobs(ctx context.Context, date time.Time) ([]alerts.Job, error) {
	day := date.In(s.location).Format("2006-01-02")

	data, err := s.client.do(ctx, http.MethodGet, "", url.Values{"date": {day}}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs for %s: %w", day, err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"date":  day,
		"count": len(records),
	}).Debug("Fetched jobs from record store")

	return toJobs(records, s.location, s.logger), nil
}

// BreakerState returns the state of the record store circuit breaker
func (s *HTTPSource) BreakerState() string {
	return s.client.breakerState()
}

// decodeRecords accepts either a bare array or an object with a "jobs" array
func decodeRecords(data []byte) ([]jobRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []jobRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, NewSourceError(0, ErrInvalidResponse.Message, map[string]interface{}{"error": err.Error()})
		}
		return records, nil
	}

	var envelope struct {
		Jobs *[]jobRecord `json:"jobs"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, NewSourceError(0, ErrInvalidResponse.Message, map[string]interface{}{"error": err.Error()})
	}
	if envelope.Jobs == nil {
		return nil, NewSourceError(0, ErrInvalidResponse.Message, map[string]interface{}{"error": "response has no jobs field"})
	}
	return *envelope.Jobs, nil
}

// HTTPLocationSource asks the fleet tracking service whether each job's
// truck was seen at the job site
type HTTPLocationSource struct {
	client *client
	logger *logrus.Logger
}

// NewHTTPLocationSource creates a location source posting to cfg.BaseURL
func NewHTTPLocationSource(cfg ClientConfig, logger *logrus.Logger) (*HTTPLocationSource, error) {
	if logger == nil {
		logger = discardLogger()
	}
	c, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &HTTPLocationSource{client: c, logger: logger}, nil
}

type locationQuery struct {
	JobID   string `json:"job_id"`
	TruckID string `json:"truck_id"`
	Address string `json:"address,omitempty"`
}

type locationResult struct {
	Status      string  `json:"status"`
	Distance    float64 `json:"distance"`
	HasTracking bool    `json:"has_tracking"`
}

// Verify returns a verification for every job with an assigned truck
func (s *HTTPLocationSource) Verify(ctx context.Context, jobs []alerts.Job) (map[string]alerts.LocationVerification, error) {
	queries := make([]locationQuery, 0, len(jobs))
	for _, job := range jobs {
		if job.ID == "" || !job.HasTruck() {
			continue
		}
		queries = append(queries, locationQuery{JobID: job.ID, TruckID: job.TruckID, Address: job.Address})
	}
	if len(queries) == 0 {
		return map[string]alerts.LocationVerification{}, nil
	}

	data, err := s.client.do(ctx, http.MethodPost, "", nil, map[string]interface{}{"jobs": queries})
	if err != nil {
		return nil, fmt.Errorf("failed to verify locations: %w", err)
	}

	var resp struct {
		Verifications map[string]locationResult `json:"verifications"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, NewSourceError(0, ErrInvalidResponse.Message, map[string]interface{}{"error": err.Error()})
	}

	out := make(map[string]alerts.LocationVerification, len(resp.Verifications))
	for jobID, r := range resp.Verifications {
		status := alerts.LocationStatus(r.Status)
		switch status {
		case alerts.LocationVerified, alerts.LocationOffSchedule:
		default:
			status = alerts.LocationUnknown
		}
		out[jobID] = alerts.LocationVerification{
			Status:      status,
			Distance:    r.Distance,
			HasTracking: r.HasTracking,
		}
	}

	s.logger.WithFields(logrus.Fields{
		"requested": len(queries),
		"verified":  len(out),
	}).Debug("Verified truck locations")

	return out, nil
}
