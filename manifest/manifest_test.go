package manifest

import (
	"context"
	"errors"
	"testing"

	"github.com/gurre/amc-etl/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{
	DatasetID:      "customers",
	UpdateStrategy: "ADDITIVE",
	FileFormat:     "JSON",
	CountryCode:    "US",
	CallerID:       "user1",
}

func TestLayoutKeys(t *testing.T) {
	assert.Equal(t, "amc/customers/ADDITIVE/JSON/US", testLayout.Prefix())
	assert.Equal(t,
		"amc/customers/ADDITIVE/JSON/US/amcabc|user1/customers.json-0.gz",
		testLayout.DataKey("amcabc", "customers.json-0.gz"))
	assert.Equal(t,
		"amc/customers/ADDITIVE/JSON/US/amcabc|user1/customers.txt",
		testLayout.ManifestKey("amcabc", "customers"))

	noCountry := testLayout
	noCountry.CountryCode = ""
	assert.Equal(t, "amc/customers/ADDITIVE/JSON/null", noCountry.Prefix())
}

func TestTargetSegment(t *testing.T) {
	assert.Equal(t, "amcabc", TargetSegment("amcabc"))
	assert.Equal(t, "abc.execute-api.us-east-1.amazonaws.com",
		TargetSegment("https://abc.execute-api.us-east-1.amazonaws.com/prod"))
	assert.Equal(t, "example.com", TargetSegment("https://example.com:8443"))
	assert.Equal(t, map[string]string{"instanceId": "example.com"}, Tags("https://example.com/x"))
}

func TestParseKey(t *testing.T) {
	key := testLayout.DataKey("amcabc", "customers.json-2020_04_12-00:00:00.gz")
	l, target, name, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, testLayout, l)
	assert.Equal(t, "amcabc", target)
	assert.Equal(t, "customers.json-2020_04_12-00:00:00.gz", name)

	noCountry := testLayout
	noCountry.CountryCode = ""
	l, _, _, err = ParseKey(noCountry.DataKey("x", "f.gz"))
	require.NoError(t, err)
	assert.Equal(t, "", l.CountryCode)

	for _, bad := range []string{"foo/bar", "amc/a/b/c/d/nocaller/f.gz", "other/a/b/c/d/t|u/f.gz"} {
		_, _, _, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestBaseNameAndStem(t *testing.T) {
	assert.Equal(t, "data.json", BaseName("data.json.gz"))
	assert.Equal(t, "data.csv", BaseName("data.csv"))
	assert.Equal(t, "data", Stem("data.json"))
	assert.Equal(t, "my-data.v2", Stem("my-data.v2.csv"))
	assert.Equal(t, "noext", Stem("noext"))
	assert.Equal(t, ".hidden", Stem(".hidden"))
}

func TestWriterWritesPerTarget(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	w := NewWriter(store, testLayout, nil)

	files := map[string][]string{
		"amcA": {"s3://out/a-0.gz", "s3://out/a-1.gz"},
		"amcB": {"s3://out/b-0.gz"},
	}
	locs, err := w.Write(ctx, "customers", []string{"amcB", "amcA", "amcC"}, files)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "mem://amc/customers/ADDITIVE/JSON/US/amcB|user1/customers.txt", locs[0])

	obj, ok := store.Get("amc/customers/ADDITIVE/JSON/US/amcA|user1/customers.txt")
	require.True(t, ok)
	assert.Equal(t, "s3://out/a-0.gz\ns3://out/a-1.gz", string(obj.Body))
	assert.Equal(t, map[string]string{"instanceId": "amcA"}, obj.Tags)

	_, ok = store.Get("amc/customers/ADDITIVE/JSON/US/amcC|user1/customers.txt")
	assert.False(t, ok)
}

func TestWriterSkipsWhenNoFiles(t *testing.T) {
	store := objectstore.NewMemoryStore()
	locs, err := NewWriter(store, testLayout, nil).Write(context.Background(), "customers", []string{"amcA"}, nil)
	require.NoError(t, err)
	assert.Empty(t, locs)
	assert.Empty(t, store.Keys())
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, []byte, map[string]string) (string, error) {
	return "", errors.New("access denied")
}

func TestWriterPropagatesSinkErrors(t *testing.T) {
	_, err := NewWriter(failingSink{}, testLayout, nil).Write(context.Background(), "s", []string{"a"}, map[string][]string{"a": {"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
