package lake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeaves(t *testing.T) {
	assert.Equal(t, "date_request=20240101_120000/", RawLeaf("20240101_120000"))
	assert.Equal(t, "date_request=20240101_120000/", TabularLeaf("20240101_120000"))
	assert.Equal(t, "date_request=20240101_120000/location=United States-Oregon/",
		TabularPartition("20240101_120000", "United States-Oregon"))
	assert.Equal(t, "tab_location_type_brewery/date_request=20240101_120000/", AnalyticalLeaf("20240101_120000"))
}

func TestEscapePartitionValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"United States-Oregon", "United States-Oregon"},
		{"NotDefinedCountry-NotDefinedCountry", "NotDefinedCountry-NotDefinedCountry"},
		{"Côte d'Ivoire-Abidjan", "Côte d%27Ivoire-Abidjan"},
		{"A/B-C", "A%2FB-C"},
		{"a=b", "a%3Db"},
		{"100%", "100%25"},
		{"tab\there", "tab%09here"},
		{"", hiveNullMarker},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := EscapePartitionValue(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, UnescapePartitionValue(got))
		})
	}
}

func TestUnescapePartitionValue_MalformedEscapesKept(t *testing.T) {
	assert.Equal(t, "50%", UnescapePartitionValue("50%"))
	assert.Equal(t, "%zz", UnescapePartitionValue("%zz"))
}

func TestPartitionValues(t *testing.T) {
	got := partitionValues(
		"date_request=20240101_120000/",
		"date_request=20240101_120000/location=A%2FB-C/part-00000.parquet",
	)
	assert.Equal(t, map[string]string{LocationColumn: "A/B-C"}, got)

	assert.Empty(t, partitionValues("date_request=20240101_120000/", "date_request=20240101_120000/part-00000.parquet"))
}
