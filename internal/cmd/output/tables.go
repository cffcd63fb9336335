package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/propgate/propgate/internal/history"
	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/release"
)

const none = "-"

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func optional(v *float64) string {
	if v == nil {
		return none
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func issues(list []gatekeeper.Issue) string {
	if len(list) == 0 {
		return none
	}
	names := make([]string, len(list))
	for i, issue := range list {
		names[i] = issue.Name()
	}
	return strings.Join(names, ", ")
}

// FindingsTable lists cross-validation findings. Only flagged findings are
// shown unless wide is set.
func FindingsTable(findings []crossval.Finding, wide bool) Data {
	d := Data{
		Headers:         []string{"Item", "Property", "Value", "Severity", "Flags"},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignLeft},
	}
	if wide {
		d.Headers = append(d.Headers, "Z", "Percentile", "Peers", "Peer Dev")
		d.ColumnAlignment = append(d.ColumnAlignment, AlignRight, AlignRight, AlignRight, AlignRight)
	}
	for _, f := range findings {
		if !wide && f.Severity == crossval.SeverityNone {
			continue
		}
		flags := make([]string, len(f.Flags))
		for i, fl := range f.Flags {
			flags[i] = string(fl)
		}
		flagText := strings.Join(flags, ", ")
		if flagText == "" {
			flagText = none
		}
		row := []string{string(f.Item), f.Property, strconv.FormatFloat(f.Value, 'g', -1, 64), string(f.Severity), flagText}
		if wide {
			row = append(row, optional(f.ZScore), optional(f.Percentile), strconv.Itoa(f.PeerCount), optional(f.PeerDeviation))
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

// CandidatesTable lists readiness decisions.
func CandidatesTable(candidates []gatekeeper.Candidate, wide bool) Data {
	d := Data{
		Headers:         []string{"Item", "Score", "Grade", "Ready", "Blocking"},
		ColumnAlignment: []Align{AlignLeft, AlignRight, AlignLeft, AlignCenter, AlignLeft},
	}
	if wide {
		d.Headers = append(d.Headers, "Warnings")
		d.ColumnAlignment = append(d.ColumnAlignment, AlignLeft)
	}
	for _, c := range candidates {
		row := []string{string(c.Item), score(c.Score), string(c.Grade), yesNo(c.Ready), issues(c.BlockingIssues)}
		if wide {
			row = append(row, issues(c.Warnings))
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

// ReleaseTable lists the items of a release run.
func ReleaseTable(res *release.Result, wide bool) Data {
	d := Data{
		Headers:         []string{"Batch", "Item", "Status", "Changed", "Error"},
		ColumnAlignment: []Align{AlignRight, AlignLeft, AlignLeft, AlignCenter, AlignLeft},
	}
	if wide {
		d.Headers = append(d.Headers, "Path", "Checksum")
		d.ColumnAlignment = append(d.ColumnAlignment, AlignLeft, AlignLeft)
	}
	for _, it := range res.Items {
		msg := none
		if it.Error != nil {
			msg = it.Error.Message
		}
		row := []string{strconv.Itoa(it.Batch), string(it.Item), string(it.Status), yesNo(it.Changed), msg}
		if wide {
			sum := it.ChecksumAfter
			if len(sum) > 12 {
				sum = sum[:12]
			}
			if sum == "" {
				sum = none
			}
			row = append(row, it.Path, sum)
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

// RollbackTable lists what a rollback did per file.
func RollbackTable(res *release.RollbackResult) Data {
	d := Data{Headers: []string{"File", "Action"}}
	for _, f := range res.Restored {
		d.Rows = append(d.Rows, []string{f, "restored"})
	}
	for _, f := range res.Unchanged {
		d.Rows = append(d.Rows, []string{f, "unchanged"})
	}
	for _, f := range res.Pruned {
		d.Rows = append(d.Rows, []string{f, "pruned"})
	}
	return d
}

// BackupsTable lists backups with their file counts.
func BackupsTable(manifests []*release.Manifest) Data {
	d := Data{
		Headers:         []string{"Backup", "Taken", "Files", "Size"},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight, AlignRight},
	}
	for _, m := range manifests {
		d.Rows = append(d.Rows, []string{
			m.ID,
			m.Timestamp.Format("2006-01-02 15:04:05"),
			strconv.Itoa(len(m.Files)),
			strconv.FormatInt(m.TotalSize(), 10),
		})
	}
	return d
}

// AlertsTable lists monitoring alerts.
func AlertsTable(alerts []monitor.Alert) Data {
	d := Data{
		Headers:         []string{"Time", "Cycle", "Type", "Severity", "Metric", "Baseline", "Current", "Message"},
		ColumnAlignment: []Align{AlignLeft, AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignLeft},
	}
	for _, a := range alerts {
		d.Rows = append(d.Rows, []string{
			a.Timestamp.Format("15:04:05"),
			strconv.FormatInt(a.Cycle, 10),
			string(a.Type),
			string(a.Severity),
			a.Metric,
			score(a.BaselineValue),
			score(a.CurrentValue),
			a.Message,
		})
	}
	return d
}

// MetricsTable summarizes a metric snapshot.
func MetricsTable(m *monitor.Metrics) Data {
	d := Data{Headers: []string{"Metric", "Value"}}
	d.Rows = [][]string{
		{"Files", strconv.Itoa(m.FileCount)},
		{"Items", strconv.Itoa(m.ItemCount)},
		{"Mean Quality", score(m.MeanQuality)},
		{"Completeness", score(m.CompletenessRate)},
		{"Consistency", score(m.Consistency)},
		{"Confidence", score(m.Confidence)},
		{"Distributions", strconv.Itoa(len(m.Distributions))},
	}
	if !m.Timestamp.IsZero() {
		d.Rows = append([][]string{{"Taken", m.Timestamp.Format("2006-01-02 15:04:05")}}, d.Rows...)
	}
	return d
}

// HistoryTable lists ledger entries.
func HistoryTable(entries []history.Entry) Data {
	d := Data{Headers: []string{"When", "Kind", "ID", "Status", "Summary"}}
	for _, e := range entries {
		id := e.ID
		if len(id) > 18 {
			id = id[:18]
		}
		d.Rows = append(d.Rows, []string{e.At.Format("2006-01-02 15:04:05"), e.Kind, id, e.Status, e.Summary})
	}
	return d
}

// ItemHistoryTable lists the recorded scores of one item.
func ItemHistoryTable(rows []history.Assessment) Data {
	d := Data{
		Headers:         []string{"When", "Run", "Score", "Grade", "Ready", "Blocking"},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignCenter, AlignLeft},
	}
	for _, a := range rows {
		blocking := none
		if len(a.Blocking) > 0 {
			blocking = strings.Join(a.Blocking, ", ")
		}
		d.Rows = append(d.Rows, []string{a.RecordedAt.Format("2006-01-02 15:04:05"), a.RunID, score(a.Score), a.Grade, yesNo(a.Ready), blocking})
	}
	return d
}

// Summary prints one line per key in a stable order.
func Summary(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, "%-12s %s\n", pairs[i]+":", pairs[i+1])
	}
	return b.String()
}
