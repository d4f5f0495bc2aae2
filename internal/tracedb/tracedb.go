// Package tracedb is the default trace.Sink implementation: a gorm+sqlite
// persistence layer for runs, events and per-processor energy totals.
// Adapted from internal/database/database.go's connection-pool and
// AutoMigrate pattern, repurposed from offload-simulation metrics to
// scheduler trace records.
package tracedb

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/trace"
)

// DB holds the trace database connection.
type DB struct {
	*gorm.DB
}

// Open connects to (creating if absent) the sqlite database at dbPath and
// migrates its schema.
func Open(dbPath string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("tracedb: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("tracedb: unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &Event{}, &EnergyTotal{}); err != nil {
		return nil, fmt.Errorf("tracedb: migrate: %w", err)
	}

	return &DB{db}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun inserts a Run row in the "running" state.
func (db *DB) StartRun(id, platformPath, scenarioPath string) error {
	run := Run{
		ID:           id,
		PlatformPath: platformPath,
		ScenarioPath: scenarioPath,
		Status:       "running",
		StartedAt:    time.Now(),
	}
	return db.Create(&run).Error
}

// FinishRun marks a run completed or failed.
func (db *DB) FinishRun(id string, succeeded bool) error {
	status := "completed"
	if !succeeded {
		status = "failed"
	}
	now := time.Now()
	return db.Model(&Run{}).Where("id = ?", id).Updates(map[string]any{
		"status":      status,
		"finished_at": &now,
	}).Error
}

// RecordEnergyTotals persists the engine's final per-processor energy
// accounting for a run.
func (db *DB) RecordEnergyTotals(runID string, tracker *engine.EnergyTracker, processors []uint64) error {
	rows := make([]EnergyTotal, 0, len(processors))
	for _, pid := range processors {
		total := tracker.Total(engine.ProcessorKey(pid))
		rows = append(rows, EnergyTotal{RunID: runID, ProcessorID: pid, TotalMJ: float64(total)})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}

// Sink is a trace.Sink that persists every record against one run ID.
// Construct one per simulation run.
type Sink struct {
	db    *DB
	runID string
}

// NewSink builds a Sink writing events under runID.
func NewSink(db *DB, runID string) *Sink {
	return &Sink{db: db, runID: runID}
}

func (s *Sink) Write(r trace.Record) {
	fieldsJSON := "{}"
	if len(r.Fields) > 0 {
		if b, err := json.Marshal(r.Fields); err == nil {
			fieldsJSON = string(b)
		}
	}
	event := Event{
		RunID:      s.runID,
		Time:       float64(r.Time),
		Type:       string(r.Type),
		FieldsJSON: fieldsJSON,
	}
	// Persistence errors are not fatal to the simulation itself: the trace
	// sink is a collaborator boundary, not part of core control flow.
	s.db.Create(&event)
}

var _ trace.Sink = (*Sink)(nil)
