// Package constants provides shared constants used throughout propgate:
// file permissions, store layout names, timeouts and time formats.
package constants

import "time"

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// ReadOnlyFilePermissions is used for immutable artifacts such as backup manifests (r--r--r--)
	ReadOnlyFilePermissions = 0444
)

// Store layout. All paths are relative to the configured state directory.
const (
	// BackupsDir holds one timestamped directory per backup.
	BackupsDir = "backups"

	// StagingDir holds one directory per release run.
	StagingDir = "staging"

	// ReportsDir holds QA and deployment reports.
	ReportsDir = "reports"

	// MonitoringDir holds the baseline, metric snapshots and alert logs.
	MonitoringDir = "monitoring"

	// ManifestFile is the backup manifest name inside a backup directory.
	ManifestFile = "manifest.yaml"

	// BaselineFile is the monitoring baseline name inside MonitoringDir.
	BaselineFile = "baseline.yaml"

	// LockFile is the global release lock inside the state directory.
	LockFile = "release.lock"

	// HistoryDB is the SQLite history ledger inside the state directory.
	HistoryDB = "history.db"

	// RecordExt is the extension of item record files.
	RecordExt = ".yaml"
)

// Timeout constants
const (
	// CycleTimeout bounds a single monitoring cycle.
	CycleTimeout = 5 * time.Minute

	// ReleaseTimeout bounds a full release run.
	ReleaseTimeout = 30 * time.Minute

	// ShutdownGrace is how long the CLI waits for an in-flight cycle on shutdown.
	ShutdownGrace = 30 * time.Second
)

// Format constants
const (
	// TimeFormatFilename is the format used in backup directory and snapshot names
	TimeFormatFilename = "20060102-150405"

	// TimeFormatDay partitions alert logs
	TimeFormatDay = "2006-01-02"
)

// Default monitoring schedules.
const (
	DefaultQuickSchedule   = "@every 5m"
	DefaultFullSchedule    = "@every 1h"
	DefaultQualitySchedule = "@every 6h"
	DefaultTrendSchedule   = "0 3 * * *"
)
