package domain

import "time"

// JobKey identifies a backup job as reported by a remote agent: one
// (server, job-name) pair.
type JobKey string

func MakeJobKey(serverID, jobName string) JobKey {
	return JobKey(serverID + "/" + jobName)
}

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunWarning RunStatus = "warning"
	RunError   RunStatus = "error"
)

// BackupJob is owned by the ingestion subsystem; the monitor only reads it.
type BackupJob struct {
	Key       JobKey    `json:"key"`
	ServerID  string    `json:"server_id"`
	JobName   string    `json:"job_name"`
	CreatedAt time.Time `json:"created_at"`
}

// JobRun is one reported backup execution.
type JobRun struct {
	JobKey     JobKey    `json:"job_key"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}
