package transform

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/gurre/amc-etl/normalize"
	"github.com/gurre/amc-etl/rows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var usFields = []Field{
	{Column: "email", Type: normalize.Email},
	{Column: "phone", Type: normalize.Phone},
	{Column: "zip", Type: normalize.Zip},
}

func advertiserTable() rows.Table {
	return rows.New([]string{"email", "phone", "zip", "amount"}, []rows.Row{
		{"email": "te-st@tEsT.CoM", "phone": "5714120599", "zip": "75236-9599", "amount": json.Number("12.5")},
		{"email": nil, "phone": "invalid phone", "zip": "1", "amount": json.Number("3")},
		{"email": Hash("already@hashed.com"), "phone": json.Number("5714120599"), "zip": "123456789123456789", "amount": nil},
	})
}

func TestParseFields(t *testing.T) {
	fields, err := ParseFields(`[{"column_name": "email", "pii_type": "email"}, {"column_name": "first", "pii_type": "FIRST_NAME"}]`)
	require.NoError(t, err)
	assert.Equal(t, []Field{
		{Column: "email", Type: normalize.Email},
		{Column: "first", Type: normalize.FirstName},
	}, fields)
	assert.Equal(t, []string{"email", "first"}, Columns(fields))

	fields, err = ParseFields("  ")
	require.NoError(t, err)
	assert.Empty(t, fields)

	fields, err = ParseFields(`[{"column_name": "x", "pii_type": "SSN"}]`)
	require.NoError(t, err)
	assert.Equal(t, normalize.PIIType("SSN"), fields[0].Type)
	_, err = ParseFields(`[{"pii_type": "EMAIL"}]`)
	assert.Error(t, err)
	_, err = ParseFields(`{`)
	assert.Error(t, err)
}

func TestTransformData(t *testing.T) {
	in := advertiserTable()
	out, stats, err := TransformData(in, usFields, "US")
	require.NoError(t, err)

	assert.Equal(t, "te-st@test.com", out.Rows[0]["email"])
	assert.Equal(t, "15714120599", out.Rows[0]["phone"])
	assert.Equal(t, "75236", out.Rows[0]["zip"])
	assert.Equal(t, json.Number("12.5"), out.Rows[0]["amount"])

	assert.Nil(t, out.Rows[1]["email"])
	assert.Equal(t, "", out.Rows[1]["phone"])
	assert.Equal(t, "", out.Rows[1]["zip"])

	assert.Equal(t, Hash("already@hashed.com"), out.Rows[2]["email"])
	assert.Equal(t, "15714120599", out.Rows[2]["phone"])
	assert.Equal(t, "12345", out.Rows[2]["zip"])

	assert.Equal(t, 2, stats.Unnormalizable)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 7, stats.Normalized)
	assert.Equal(t, 3, stats.ColumnsAffected)

	// The input table is not modified.
	assert.Equal(t, "te-st@tEsT.CoM", in.Rows[0]["email"])
}

func TestTransformDataMissingColumn(t *testing.T) {
	_, _, err := TransformData(advertiserTable(), []Field{{Column: "city", Type: normalize.City}}, "US")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rows.ErrColumnNotFound))
}

func TestTransformDataUnsupportedAddressCountry(t *testing.T) {
	tbl := rows.New([]string{"addr"}, []rows.Row{{"addr": "1 Main St"}})
	_, _, err := TransformData(tbl, []Field{{Column: "addr", Type: normalize.Address}}, "BR")
	require.Error(t, err)
	assert.True(t, errors.Is(err, normalize.ErrUnsupportedCountry))
}

func TestHashData(t *testing.T) {
	normalized, _, err := TransformData(advertiserTable(), usFields, "US")
	require.NoError(t, err)

	hashed, stats, err := HashData(normalized, usFields)
	require.NoError(t, err)

	assert.Equal(t, Hash("te-st@test.com"), hashed.Rows[0]["email"])
	assert.Nil(t, hashed.Rows[1]["email"])
	assert.Equal(t, "", hashed.Rows[1]["phone"])
	assert.Equal(t, Hash("already@hashed.com"), hashed.Rows[2]["email"])
	assert.Equal(t, json.Number("12.5"), hashed.Rows[0]["amount"])
	assert.Equal(t, 5, stats.Hashed)
	assert.Equal(t, 4, stats.Skipped)
}

func TestHashKnownDigest(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(""))
	assert.True(t, IsHashed(Hash("abc")))
	assert.False(t, IsHashed("ABC"))
	assert.False(t, IsHashed(Hash("abc")[:63]))
}

func TestHashDataIsIdempotent(t *testing.T) {
	fields := []Field{{Column: "v", Type: normalize.Name}}
	rapid.Check(t, func(t *rapid.T) {
		vals := rapid.SliceOf(rapid.OneOf(
			rapid.Just[any](nil),
			rapid.String().AsAny(),
		)).Draw(t, "values")

		rs := make([]rows.Row, len(vals))
		for i, v := range vals {
			rs[i] = rows.Row{"v": v}
		}
		tbl := rows.New([]string{"v"}, rs)

		once, _, err := HashData(tbl, fields)
		if err != nil {
			t.Fatalf("first hash: %v", err)
		}
		twice, _, err := HashData(once, fields)
		if err != nil {
			t.Fatalf("second hash: %v", err)
		}
		for i := range once.Rows {
			if once.Rows[i]["v"] != twice.Rows[i]["v"] {
				t.Fatalf("row %d changed on second pass: %v -> %v", i, once.Rows[i]["v"], twice.Rows[i]["v"])
			}
			if vals[i] == nil && once.Rows[i]["v"] != nil {
				t.Fatalf("row %d: null was hashed", i)
			}
		}
	})
}

func TestTransformDataIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		country := rapid.SampledFrom([]string{"US", "GB", "FR", "DE", "ES", "IT", "JP", "IN", "CA"}).Draw(t, "country")
		piiType := rapid.SampledFrom([]normalize.PIIType{
			normalize.Name, normalize.Address, normalize.State, normalize.Zip,
			normalize.Phone, normalize.Email, normalize.City,
		}).Draw(t, "type")
		v := rapid.String().Draw(t, "value")

		tbl := rows.New([]string{"c"}, []rows.Row{{"c": v}})
		fields := []Field{{Column: "c", Type: piiType}}
		a, _, err := TransformData(tbl, fields, country)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		b, _, err := TransformData(tbl, fields, country)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if a.Rows[0]["c"] != b.Rows[0]["c"] {
			t.Fatalf("non-deterministic: %q vs %q", a.Rows[0]["c"], b.Rows[0]["c"])
		}
	})
}
