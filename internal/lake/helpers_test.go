package lake

import (
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	"github.com/stretchr/testify/require"
)

const testTimestamp = "20240101_120000"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *blobstore.FSStore {
	t.Helper()
	st, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return st
}

func sampleRecords() []domain.NormalizedRecord {
	s := domain.StringPtr
	return domain.Normalize([]domain.BreweryRecord{
		{ID: s("1"), Name: s("Ninkasi"), BreweryType: s("large"), Country: s("United States"), State: s("Oregon")},
		{ID: s("2"), Name: s("Cascade"), BreweryType: s("micro"), Country: s("United States"), State: s("Oregon")},
		{ID: s("3"), Name: s("Anchor"), BreweryType: s("Micro"), Country: s("United States"), State: s("California"), Phone: s("4158636950")},
		{ID: s("4"), Name: s("Nowhere"), BreweryType: nil},
	}, testTimestamp)
}
