package alerts

import (
	"strings"
	"time"
)

// JobStatus is the externally reported state of a job
type JobStatus string

const (
	StatusEntered     JobStatus = "Entered"
	StatusInProgress  JobStatus = "In Progress"
	StatusCompleted   JobStatus = "Completed"
	StatusAttempted   JobStatus = "Attempted"
	StatusRescheduled JobStatus = "Re-scheduled"
)

// NormalizeStatus maps the spellings used by upstream record stores
// ("in-progress", "IN_PROGRESS", "Rescheduled") onto the canonical statuses.
// Unrecognised values are returned trimmed but otherwise unchanged.
func NormalizeStatus(raw string) JobStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)

	switch key {
	case "entered", "new", "open":
		return StatusEntered
	case "inprogress", "started":
		return StatusInProgress
	case "completed", "complete", "done":
		return StatusCompleted
	case "attempted":
		return StatusAttempted
	case "rescheduled":
		return StatusRescheduled
	default:
		return JobStatus(strings.TrimSpace(raw))
	}
}

// Open reports whether the job still expects work to be done
func (s JobStatus) Open() bool {
	return s == StatusEntered || s == StatusInProgress
}

// Job is an immutable snapshot of one work order as observed at sample time
type Job struct {
	ID          string     `json:"job_id" yaml:"job_id"`
	Status      JobStatus  `json:"status" yaml:"status"`
	TruckID     string     `json:"truck_id,omitempty" yaml:"truck_id,omitempty"`
	DriverID    string     `json:"driver_id,omitempty" yaml:"driver_id,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty" yaml:"arrived_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	JobDate     time.Time  `json:"job_date" yaml:"job_date"`
	Customer    string     `json:"customer,omitempty" yaml:"customer,omitempty"`
	Address     string     `json:"address,omitempty" yaml:"address,omitempty"`
}

// HasTruck reports whether a truck is assigned
func (j Job) HasTruck() bool {
	return strings.TrimSpace(j.TruckID) != ""
}

// HasDriver reports whether a driver is assigned
func (j Job) HasDriver() bool {
	return strings.TrimSpace(j.DriverID) != ""
}

// Before reports whether the job's date is a calendar day before now's date,
// compared in now's location. A zero job date is never before anything.
func (j Job) Before(now time.Time) bool {
	if j.JobDate.IsZero() {
		return false
	}
	jy, jm, jd := j.JobDate.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	jobDay := time.Date(jy, jm, jd, 0, 0, 0, 0, now.Location())
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, now.Location())
	return jobDay.Before(today)
}

// LocationStatus is the outcome of a fleet-location check for a job
type LocationStatus string

const (
	LocationVerified    LocationStatus = "verified"
	LocationOffSchedule LocationStatus = "off_schedule"
	LocationUnknown     LocationStatus = "unknown"
)

// LocationVerification is the per-cycle side input describing whether the
// assigned truck was seen at the job site. It is supplied by the caller and
// never stored by the engine.
type LocationVerification struct {
	Status      LocationStatus `json:"status"`
	Distance    float64        `json:"distance"`
	HasTracking bool           `json:"has_tracking"`
}
