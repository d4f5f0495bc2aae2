package tracedb

import "time"

// Run represents one simulation execution, identified by a deterministic
// uuid.NewSHA1-derived ID so repeated invocations with the same platform
// and scenario inputs are traceable to the same run lineage.
type Run struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	PlatformPath string     `json:"platform_path"`
	ScenarioPath string     `json:"scenario_path"`
	Status       string     `json:"status"` // running, completed, failed
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Event is one persisted trace.Record.
type Event struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	RunID      string    `json:"run_id" gorm:"index"`
	Time       float64   `json:"time" gorm:"index"`
	Type       string    `json:"type" gorm:"index"`
	FieldsJSON string    `json:"fields"`
	CreatedAt  time.Time `json:"created_at"`
}

// EnergyTotal is one processor's accumulated energy at the end of a run.
type EnergyTotal struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	RunID       string  `json:"run_id" gorm:"index"`
	ProcessorID uint64  `json:"processor_id"`
	TotalMJ     float64 `json:"total_mj"`
}
