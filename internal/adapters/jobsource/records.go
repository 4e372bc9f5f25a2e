package jobsource

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// jobRecord is the wire shape shared by the HTTP and file sources. Timestamps
// are kept as strings because upstream stores mix RFC 3339, bare dates and
// empty values.
type jobRecord struct {
	ID          string `json:"job_id" yaml:"job_id"`
	Status      string `json:"status" yaml:"status"`
	TruckID     string `json:"truck_id" yaml:"truck_id"`
	DriverID    string `json:"driver_id" yaml:"driver_id"`
	ArrivedAt   string `json:"arrived_at" yaml:"arrived_at"`
	CompletedAt string `json:"completed_at" yaml:"completed_at"`
	JobDate     string `json:"job_date" yaml:"job_date"`
	Customer    string `json:"customer" yaml:"customer"`
	Address     string `json:"address" yaml:"address"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// toJobs converts wire records into job snapshots. A record with an
// unparseable timestamp keeps the job but drops that field; records without
// an id are passed through so the engine counts them as skipped.
func toJobs(records []jobRecord, loc *time.Location, logger *logrus.Logger) []alerts.Job {
	if loc == nil {
		loc = time.UTC
	}

	jobs := make([]alerts.Job, 0, len(records))
	for _, r := range records {
		job := alerts.Job{
			ID:       strings.TrimSpace(r.ID),
			Status:   alerts.NormalizeStatus(r.Status),
			TruckID:  strings.TrimSpace(r.TruckID),
			DriverID: strings.TrimSpace(r.DriverID),
			Customer: r.Customer,
			Address:  r.Address,
		}

		if t, ok := parseTimestamp(r.ArrivedAt, loc); ok {
			job.ArrivedAt = &t
		} else if r.ArrivedAt != "" {
			logBadField(logger, job.ID, "arrived_at", r.ArrivedAt)
		}
		if t, ok := parseTimestamp(r.CompletedAt, loc); ok {
			job.CompletedAt = &t
		} else if r.CompletedAt != "" {
			logBadField(logger, job.ID, "completed_at", r.CompletedAt)
		}
		if t, ok := parseTimestamp(r.JobDate, loc); ok {
			job.JobDate = t
		} else if r.JobDate != "" {
			logBadField(logger, job.ID, "job_date", r.JobDate)
		}

		jobs = append(jobs, job)
	}
	return jobs
}

func logBadField(logger *logrus.Logger, jobID, field, value string) {
	if logger == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"field":  field,
		"value":  value,
	}).Warn("Ignoring unparseable job timestamp")
}
