package monitor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
)

// Store subdirectories.
const (
	alertsDir  = "alerts"
	metricsDir = "metrics"
)

// Alert is one raised monitoring alert.
type Alert struct {
	ID            string    `json:"id"`
	Type          Check     `json:"type"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	Metric        string    `json:"metric"`
	BaselineValue float64   `json:"baseline_value"`
	CurrentValue  float64   `json:"current_value"`
	Delta         float64   `json:"delta"`
	Cycle         int64     `json:"cycle"`
	Kind          Kind      `json:"kind"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store persists the baseline, metric snapshots and the alert log.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// BaselinePath returns the baseline file path.
func (s *Store) BaselinePath() string {
	return filepath.Join(s.dir, constants.BaselineFile)
}

// LoadBaseline reads the baseline. A missing baseline is a NotFoundError.
func (s *Store) LoadBaseline() (*Metrics, error) {
	data, err := os.ReadFile(s.BaselinePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("baseline", s.BaselinePath())
		}
		return nil, errors.Storage("baseline", "read baseline", err)
	}
	var m Metrics
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Storage("baseline", "decode baseline", err)
	}
	return &m, nil
}

// SetBaseline replaces the baseline with m.
func (s *Store) SetBaseline(m *Metrics) error {
	data, err := yaml.MarshalWithOptions(m, yaml.Indent(2), yaml.IndentSequence(false))
	if err != nil {
		return errors.Storage("baseline", "encode baseline", err)
	}
	if err := fsutil.WriteAtomic(s.BaselinePath(), data); err != nil {
		return errors.Storage("baseline", "write baseline", err)
	}
	return nil
}

// ResetBaseline removes the baseline so the next cycle adopts a new one.
func (s *Store) ResetBaseline() error {
	if err := os.Remove(s.BaselinePath()); err != nil && !os.IsNotExist(err) {
		return errors.Storage("baseline", "remove baseline", err)
	}
	return nil
}

// AppendAlerts appends alerts to the log file of their day.
func (s *Store) AppendAlerts(alerts []Alert) error {
	byDay := make(map[string][]Alert)
	var days []string
	for _, a := range alerts {
		day := a.Timestamp.UTC().Format(constants.TimeFormatDay)
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], a)
	}
	if len(days) == 0 {
		return nil
	}
	dir := filepath.Join(s.dir, alertsDir)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.Storage("alerts", "create alert dir", err)
	}
	for _, day := range days {
		if err := appendLines(filepath.Join(dir, day+".jsonl"), byDay[day]); err != nil {
			return err
		}
	}
	return nil
}

func appendLines(path string, alerts []Alert) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.FilePermissions)
	if err != nil {
		return errors.Storage("alerts", "open alert log", err)
	}
	enc := json.NewEncoder(f)
	for _, a := range alerts {
		if err := enc.Encode(a); err != nil {
			_ = f.Close()
			return errors.Storage("alerts", "append alert", err)
		}
	}
	if err := f.Close(); err != nil {
		return errors.Storage("alerts", "close alert log", err)
	}
	return nil
}

// ReadAlerts returns the alerts logged on day.
func (s *Store) ReadAlerts(day time.Time) ([]Alert, error) {
	path := filepath.Join(s.dir, alertsDir, day.UTC().Format(constants.TimeFormatDay)+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Storage("alerts", "open alert log", err)
	}
	defer func() { _ = f.Close() }()

	var alerts []Alert
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var a Alert
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			return alerts, errors.NewParseError("json", path, fmt.Sprintf("line %d: %v", line, err), err)
		}
		alerts = append(alerts, a)
	}
	if err := scanner.Err(); err != nil {
		return alerts, errors.Storage("alerts", "read alert log", err)
	}
	return alerts, nil
}

// SaveSnapshot writes the metrics of one cycle and returns its path.
func (s *Store) SaveSnapshot(m *Metrics) (string, error) {
	name := fmt.Sprintf("%s-%06d-%s%s", m.Timestamp.UTC().Format(constants.TimeFormatFilename), m.Cycle, m.Kind, constants.RecordExt)
	path := filepath.Join(s.dir, metricsDir, name)
	data, err := yaml.MarshalWithOptions(m, yaml.Indent(2), yaml.IndentSequence(false))
	if err != nil {
		return "", errors.Storage("metrics", "encode snapshot", err)
	}
	if err := fsutil.WriteAtomic(path, data); err != nil {
		return "", errors.Storage("metrics", "write snapshot", err)
	}
	return path, nil
}
