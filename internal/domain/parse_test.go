package domain

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimestamp = "20240101_120000"

func TestParsePayload(t *testing.T) {
	t.Run("full entry", func(t *testing.T) {
		payload := `[{"id":"5128df48","name":"Mad Fox Brewing","brewery_type":"brewpub",
			"address_1":"444 W Broad St","address_2":null,"address_3":null,"city":"Falls Church",
			"state_province":"Virginia","postal_code":"22046-3300","country":"United States",
			"longitude":"-77.1776","latitude":"38.8831","phone":"7039426840",
			"website_url":"http://www.madfoxbrewing.com","state":"Virginia","street":"444 W Broad St"}]`

		records, err := ParsePayload(payload)
		require.NoError(t, err)
		require.Len(t, records, 1)

		r := records[0]
		assert.Equal(t, "5128df48", *r.ID)
		assert.Equal(t, "brewpub", *r.BreweryType)
		assert.Nil(t, r.Address2)
		assert.Nil(t, r.Address3)
		assert.Equal(t, "Falls Church", *r.City)
		assert.Equal(t, "-77.1776", *r.Longitude)
		assert.Equal(t, "Virginia", *r.State)
		assert.Equal(t, "444 W Broad St", *r.Street)
	})

	t.Run("missing fields are nil", func(t *testing.T) {
		records, err := ParsePayload(`[{"id":"1","name":"A"}]`)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "1", *records[0].ID)
		assert.Nil(t, records[0].Country)
		assert.Nil(t, records[0].BreweryType)
	})

	t.Run("extra fields ignored", func(t *testing.T) {
		records, err := ParsePayload(`[{"id":"1","updated_at":"2024-01-01","tags":["a"]}]`)
		require.NoError(t, err)
		assert.Equal(t, "1", *records[0].ID)
	})

	t.Run("numbers and booleans keep literal text", func(t *testing.T) {
		records, err := ParsePayload(`[{"id":7,"longitude":-97.46818222,"phone":true}]`)
		require.NoError(t, err)
		assert.Equal(t, "7", *records[0].ID)
		assert.Equal(t, "-97.46818222", *records[0].Longitude)
		assert.Equal(t, "true", *records[0].Phone)
	})

	t.Run("empty string is not null", func(t *testing.T) {
		records, err := ParsePayload(`[{"country":""}]`)
		require.NoError(t, err)
		require.NotNil(t, records[0].Country)
		assert.Empty(t, *records[0].Country)
	})

	t.Run("empty array", func(t *testing.T) {
		records, err := ParsePayload(`[]`)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestParsePayload_Errors(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantIndex int
		wantField string
	}{
		{"empty body", "", -1, ""},
		{"invalid json", "[{", -1, ""},
		{"top level object", `{"message":"rate limited"}`, -1, ""},
		{"html error page", "<html>502 Bad Gateway</html>", -1, ""},
		{"entry not object", `[{"id":"1"}, "oops"]`, 1, ""},
		{"object in field", `[{"id":"1"},{"id":"2"},{"id":"3","country":{"code":"US"}}]`, 2, "country"},
		{"array in field", `[{"name":["a","b"]}]`, 0, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(tt.payload)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr), "expected *ParseError, got %T", err)
			assert.Equal(t, tt.wantIndex, perr.Index)
			assert.Equal(t, tt.wantField, perr.Field)
			assert.Contains(t, err.Error(), "parse payload")
		})
	}
}

func TestParsePayload_TypeMismatchIsWrapped(t *testing.T) {
	_, err := ParsePayload(`[{"state":{"name":"CA"}}]`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), `field "state"`)
}

func TestLocationKey(t *testing.T) {
	tests := []struct {
		name     string
		country  *string
		state    *string
		expected string
	}{
		{"both present", StringPtr("USA"), StringPtr("CA"), "USA-CA"},
		{"missing both", nil, nil, "NotDefinedCountry-NotDefinedCountry"},
		{"missing country", nil, StringPtr("CA"), "NotDefinedCountry-CA"},
		{"missing state", StringPtr("Ireland"), nil, "Ireland-NotDefinedCountry"},
		{"empty strings kept", StringPtr(""), StringPtr("CA"), "-CA"},
		{"spaces kept", StringPtr("United States"), StringPtr("New York"), "United States-New York"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LocationKey(tt.country, tt.state))
		})
	}
}

func TestNormalize(t *testing.T) {
	records, err := ParsePayload(`[{"id":"1","country":"USA","state":"CA"},{"id":"2"}]`)
	require.NoError(t, err)

	out := Normalize(records, testTimestamp)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, testTimestamp, r.DateRequest)
		assert.NotEmpty(t, r.Location)
		assert.Equal(t, LocationKey(r.Country, r.State), r.Location)
	}
	assert.Equal(t, "USA-CA", out[0].Location)
	assert.Equal(t, "NotDefinedCountry-NotDefinedCountry", out[1].Location)
	assert.Equal(t, "1", *out[0].ID)
}

func TestFieldByName(t *testing.T) {
	f, ok := FieldByName("state_province")
	require.True(t, ok)
	assert.Equal(t, FieldText, f.Type)
	assert.True(t, f.Nullable)

	var r BreweryRecord
	f.Set(&r, StringPtr("Oregon"))
	assert.Equal(t, "Oregon", *r.StateProvince)
	assert.Equal(t, "Oregon", *f.Get(&r))

	_, ok = FieldByName("updated_at")
	assert.False(t, ok)
	assert.Len(t, BreweryFields, 16)
}

func TestFormatTimestamp(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 5, 7, 8, 9, 0, time.Local))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	ts := FormatTimestamp(Now())
	assert.Equal(t, "20240305_070809", ts)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}_\d{6}$`), ts)

	fakeClock.Advance(time.Second)
	later := FormatTimestamp(Now())
	assert.GreaterOrEqual(t, later, ts)
}
