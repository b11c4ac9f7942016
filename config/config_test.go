package config

import (
	"errors"
	"testing"

	"github.com/gurre/amc-etl/normalize"
	"github.com/gurre/amc-etl/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJob() *Job {
	return &Job{
		Source:         "s3://in/customers.json",
		Output:         "s3://out",
		DatasetID:      " customers ",
		UpdateStrategy: "ADDITIVE",
		FileFormat:     "json",
		CountryCode:    "us",
		PIIFields:      []transform.Field{{Column: "email", Type: normalize.Email}},
		Targets:        []string{"amcabc123"},
		CallerID:       "user1",
	}
}

func TestValidJob(t *testing.T) {
	j := validJob()
	require.NoError(t, j.Validate())
	assert.Equal(t, "customers", j.DatasetID)
	assert.Equal(t, "JSON", j.FileFormat)
	assert.Equal(t, "US", j.CountryCode)
	assert.Equal(t, DefaultPartitionBytes, j.PartitionBytes)
	assert.Equal(t, int64(500_000_000), j.PartitionBytes)
	assert.Equal(t, DefaultChunkSize, j.ChunkSize)
	assert.False(t, j.IsFact())
}

func TestInvalidJobs(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Job)
	}{
		{"missing source", func(j *Job) { j.Source = "" }},
		{"missing output", func(j *Job) { j.Output = "" }},
		{"missing dataset", func(j *Job) { j.DatasetID = "  " }},
		{"dataset with slash", func(j *Job) { j.DatasetID = "a/b" }},
		{"missing update strategy", func(j *Job) { j.UpdateStrategy = "" }},
		{"bad file format", func(j *Job) { j.FileFormat = "PARQUET" }},
		{"bad country", func(j *Job) { j.CountryCode = "BR" }},
		{"no targets", func(j *Job) { j.Targets = nil }},
		{"blank target", func(j *Job) { j.Targets = []string{"a", " "} }},
		{"duplicate target", func(j *Job) { j.Targets = []string{"amcA", "amcB", "amcA"} }},
		{"targets on one host", func(j *Job) {
			j.Targets = []string{"https://abc.execute-api.us-east-1.amazonaws.com/prod", "https://abc.execute-api.us-east-1.amazonaws.com/beta"}
		}},
		{"url and instance id collide", func(j *Job) {
			j.Targets = []string{"abc.execute-api.us-east-1.amazonaws.com", "https://abc.execute-api.us-east-1.amazonaws.com/prod"}
		}},
		{"missing caller", func(j *Job) { j.CallerID = "" }},
		{"pii without column", func(j *Job) { j.PIIFields = []transform.Field{{Type: normalize.Email}} }},
		{"bad period", func(j *Job) { j.TimestampColumn = "ts"; j.Period = "P1M" }},
		{"bad s3 output", func(j *Job) { j.Output = "s3://" }},
		{"negative partition size", func(j *Job) { j.PartitionBytes = -1 }},
		{"negative chunk size", func(j *Job) { j.ChunkSize = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			j := validJob()
			tc.mutate(j)
			err := j.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), err)
		})
	}
}

func TestDistinctTargetsAccepted(t *testing.T) {
	j := validJob()
	j.Targets = []string{"amcA", "https://abc.execute-api.us-east-1.amazonaws.com/prod", "https://def.execute-api.us-east-1.amazonaws.com/prod"}
	require.NoError(t, j.Validate())
}

func TestCollidingTargetsNamed(t *testing.T) {
	j := validJob()
	j.Targets = []string{"amcA", "amcA"}
	err := j.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"amcA"`)
}

func TestOptionalFields(t *testing.T) {
	j := validJob()
	j.CountryCode = ""
	j.FileFormat = ""
	j.Output = ""
	j.DryRun = true
	j.TimestampColumn = " ts "
	j.Period = "PT1H"
	require.NoError(t, j.Validate())
	assert.True(t, j.IsFact())
	assert.Equal(t, "ts", j.TimestampColumn)

	j.CountryCode = "uk"
	require.NoError(t, j.Validate())
	assert.Equal(t, "UK", j.CountryCode)
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{`["amc1", "amc2"]`, []string{"amc1", "amc2"}},
		{"amc1, amc2,,", []string{"amc1", "amc2"}},
		{"https://example.com/prod", []string{"https://example.com/prod"}},
	}
	for _, tc := range testCases {
		got, err := ParseList(tc.in)
		require.NoError(t, err)
		if tc.want == nil {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseList(`["unterminated`)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseFields(t *testing.T) {
	fields, err := ParseFields(`[{"column_name": "phone", "pii_type": "PHONE"}]`)
	require.NoError(t, err)
	assert.Equal(t, []transform.Field{{Column: "phone", Type: normalize.Phone}}, fields)

	fields, err = ParseFields("")
	require.NoError(t, err)
	assert.Empty(t, fields)

	_, err = ParseFields("not json")
	assert.True(t, errors.Is(err, ErrInvalid))
}
