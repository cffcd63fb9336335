package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/internal/utils/ptr"
	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/release"
)

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", "wide", ""} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
	assert.Equal(t, FormatYAML, DetectFormat("YAML"))
}

func TestFormatters(t *testing.T) {
	data := []gatekeeper.Candidate{{Item: "metals/copper", Score: 0.8, Grade: quality.GradeGood, Ready: true}}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON).Format(&buf, data))
	assert.Contains(t, buf.String(), `"item": "metals/copper"`)

	buf.Reset()
	require.NoError(t, NewFormatter(FormatYAML).Format(&buf, data))
	assert.Contains(t, buf.String(), "- item: metals/copper")

	buf.Reset()
	require.NoError(t, NewFormatter(FormatTable).Format(&buf, CandidatesTable(data, false)))
	assert.Contains(t, buf.String(), "metals/copper")
	assert.Contains(t, buf.String(), "0.800")
}

func TestTableFromStructs(t *testing.T) {
	type row struct {
		RunID string `json:"run_id"`
		Count int
		note  string
	}
	d := toTable([]row{{RunID: "r1", Count: 2, note: "x"}})
	require.NotNil(t, d)
	assert.Equal(t, []string{"Run Id", "Count"}, d.Headers)
	assert.Equal(t, [][]string{{"r1", "2"}}, d.Rows)

	single := toTable(&row{RunID: "r2"})
	require.NotNil(t, single)
	assert.Equal(t, []string{"Run Id", "r2"}, single.Rows[0])

	assert.Nil(t, toTable(42))
}

func TestFindingsTableHidesCleanFindings(t *testing.T) {
	findings := []crossval.Finding{
		{Item: "metals/copper", Property: "density", Value: 8.96, Severity: crossval.SeverityNone},
		{Item: "metals/lead", Property: "density", Value: 30, Severity: crossval.SeverityHigh, Flags: []crossval.Flag{crossval.FlagZScoreOutlier}, ZScore: ptr.To(3.2)},
	}
	d := FindingsTable(findings, false)
	require.Len(t, d.Rows, 1)
	assert.Equal(t, "metals/lead", d.Rows[0][0])

	wide := FindingsTable(findings, true)
	require.Len(t, wide.Rows, 2)
	assert.Equal(t, "3.20", wide.Rows[1][5])
	assert.Equal(t, "-", wide.Rows[0][5])
}

func TestReleaseTable(t *testing.T) {
	res := &release.Result{Items: []release.ItemResult{{Item: "metals/tin", Batch: 1, Status: release.ItemApplied, Changed: true, ChecksumAfter: "0123456789abcdef"}}}
	d := ReleaseTable(res, true)
	assert.Equal(t, []string{"1", "metals/tin", "applied", "yes", "-", "", "0123456789ab"}, d.Rows[0])
}
