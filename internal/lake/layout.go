// Package lake materializes the bronze, silver and gold layers as Parquet file
// sets with Hive-style partition directories, and reads them back.
package lake

import (
	"fmt"
	"strings"
)

const (
	DateRequestColumn = "date_request"
	LocationColumn    = "location"

	// AnalyticalTableName is the gold table directory below the gold root.
	AnalyticalTableName = "tab_location_type_brewery"

	// SuccessMarker is written last in every leaf so readers can tell a
	// finished write from an interrupted one.
	SuccessMarker = "_SUCCESS"

	partFileName   = "part-00000.parquet"
	parquetSuffix  = ".parquet"
	createdBy      = "brewery-data-etl"
	hiveNullMarker = "__HIVE_DEFAULT_PARTITION__"
)

// PartitionSegment renders one Hive partition directory name, col=value.
func PartitionSegment(column, value string) string {
	return column + "=" + EscapePartitionValue(value)
}

// RawLeaf is the bronze directory of one capture.
func RawLeaf(dateRequest string) string {
	return PartitionSegment(DateRequestColumn, dateRequest) + "/"
}

// TabularLeaf is the silver directory of one capture.
func TabularLeaf(dateRequest string) string {
	return PartitionSegment(DateRequestColumn, dateRequest) + "/"
}

// TabularPartition is the silver directory holding one location.
func TabularPartition(dateRequest, location string) string {
	return TabularLeaf(dateRequest) + PartitionSegment(LocationColumn, location) + "/"
}

// AnalyticalLeaf is the gold directory of one capture.
func AnalyticalLeaf(dateRequest string) string {
	return AnalyticalTableName + "/" + PartitionSegment(DateRequestColumn, dateRequest) + "/"
}

// escapeSet holds the characters Hive escapes in partition values besides
// control characters.
const escapeSet = "\"#%'*/:=?\\\x7f{[]^"

// EscapePartitionValue percent-encodes characters that cannot appear in a
// partition directory name. Empty values use the Hive null partition name.
func EscapePartitionValue(v string) string {
	if v == "" {
		return hiveNullMarker
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < 0x20 || strings.IndexByte(escapeSet, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// UnescapePartitionValue reverses EscapePartitionValue.
func UnescapePartitionValue(v string) string {
	if v == hiveNullMarker {
		return ""
	}
	if !strings.Contains(v, "%") {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '%' && i+2 < len(v) {
			if h, ok := unhex(v[i+1]); ok {
				if l, ok := unhex(v[i+2]); ok {
					b.WriteByte(h<<4 | l)
					i += 2
					continue
				}
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// partitionValues extracts col=value segments from the directories of key
// below prefix.
func partitionValues(prefix, key string) map[string]string {
	rel := strings.TrimPrefix(key, prefix)
	segments := strings.Split(rel, "/")
	values := make(map[string]string)
	for _, seg := range segments[:len(segments)-1] {
		col, val, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		values[col] = UnescapePartitionValue(val)
	}
	return values
}
