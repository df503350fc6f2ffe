package model

import (
	"path/filepath"
	"time"
)

// Message is one announcement as submitted by the user
type Message struct {
	Name          string
	Text          string
	SecondaryText string
}

// OutputUnit is the set of renders that collapse into one deliverable file
type OutputUnit struct {
	Name       string
	Renders    []*AudioAsset // primary first, optional secondary second
	Background *AudioAsset
	Final      *AudioAsset
}

// HasBackground reports whether a bed must be mixed under this unit
func (u *OutputUnit) HasBackground() bool {
	return u.Background != nil
}

// Job owns the three job-scoped directories and the records built at group time
type Job struct {
	ID          string
	StagingDir  string
	WorkDir     string
	ResultsDir  string
	ArchivePath string
	Background  *AudioAsset
	Messages    []Message
}

// Job-wide assets live in subdirectories; unit names are plain file names,
// so no unit can write into them.
const (
	SharedDir     = "shared"
	BackgroundDir = "background"
)

// WorkPath returns a path inside the job's working directory
func (j *Job) WorkPath(name string) string {
	return filepath.Join(j.WorkDir, name)
}

// ResultPath returns a path inside the job's results directory
func (j *Job) ResultPath(name string) string {
	return filepath.Join(j.ResultsDir, name)
}

// SharedPath locates a silence asset every unit reads
func (j *Job) SharedPath(name string) string {
	return filepath.Join(j.WorkDir, SharedDir, name)
}

// BackgroundPath locates the job's copy of the background bed
func (j *Job) BackgroundPath(name string) string {
	return filepath.Join(j.ResultsDir, BackgroundDir, name)
}

// JobState is the orchestrator's terminal classification
type JobState string

const (
	JobGrouped        JobState = "grouped"
	JobRunning        JobState = "running"
	JobSuccess        JobState = "success"
	JobPartialFailure JobState = "partial_failure"
	JobFatal          JobState = "fatal"
)

// UnitFailure records a unit that contributed no final asset
type UnitFailure struct {
	Unit  string `yaml:"unit"`
	Stage string `yaml:"stage"`
	Error string `yaml:"error"`
}

// JobResult is returned to callers of AssembleJob
type JobResult struct {
	JobID       string
	ArchivePath string
	State       JobState
	Completed   []string
	Skipped     []UnitFailure
	Duration    time.Duration
}

// UnitResult is produced by a single unit pipeline
type UnitResult struct {
	Unit     string
	Final    *AudioAsset
	Stage    string
	Err      error
	Duration time.Duration
}
