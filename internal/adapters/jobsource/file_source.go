package jobsource

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// FileSource reads jobs from a YAML file on every fetch, so edits take
// effect on the next cycle. It is meant for local runs and drills.
//
//	jobs:
//	  - job_id: "356001"
//	    status: Entered
//	    job_date: 2026-03-10
type FileSource struct {
	path     string
	location *time.Location
	logger   *logrus.Logger
}

type jobFile struct {
	Jobs []jobRecord `yaml:"jobs"`
}

// NewFileSource creates a source backed by the YAML file at path
func NewFileSource(path string, loc *time.Location, logger *logrus.Logger) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("job file path is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &FileSource{path: path, location: loc, logger: logger}, nil
}

// FetchJobs returns the jobs in the file dated on date's calendar day.
// Jobs without a date are always included.
func (s *FileSource) FetchJobs(ctx context.Context, date time.Time) ([]alerts.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var file jobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", s.path, err)
	}

	day := date.In(s.location).Format("2006-01-02")
	all := toJobs(file.Jobs, s.location, s.logger)
	jobs := make([]alerts.Job, 0, len(all))
	for _, job := range all {
		if job.JobDate.IsZero() || job.JobDate.In(s.location).Format("2006-01-02") == day {
			jobs = append(jobs, job)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"path":  s.path,
		"date":  day,
		"count": len(jobs),
	}).Debug("Loaded jobs from file")

	return jobs, nil
}
