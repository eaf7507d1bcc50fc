package blobstore

import (
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/blobstore/blobstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestS3Store(t *testing.T, prefix string) (*S3Store, *blobstoretest.S3Server) {
	t.Helper()
	blobstoretest.IsolateAWSEnv(t)
	srv := blobstoretest.NewS3Server(t, "lake")

	st, err := NewS3Store(context.Background(), "lake", prefix, S3Options{
		Endpoint:       srv.URL,
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return st, srv
}

func newTestGCSStore(t *testing.T, prefix string) (*GCSStore, *blobstoretest.GCSServer) {
	t.Helper()
	blobstoretest.IsolateGCSEnv(t)
	srv := blobstoretest.NewGCSServer(t, "lake")

	st, err := NewGCSStore(context.Background(), "lake", prefix,
		option.WithEndpoint(srv.Endpoint()),
		option.WithoutAuthentication(),
		storage.WithJSONReads(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, srv
}

func TestS3Store_PutGetList(t *testing.T) {
	ctx := context.Background()
	st, srv := newTestS3Store(t, "data_lake_1/")
	srv.SetObject("data_lake_2/date_request=20240101_120000/_SUCCESS", nil)

	require.NoError(t, st.Put(ctx, "date_request=20240101_120000/part-00000.parquet", []byte("PAR1")))
	require.NoError(t, st.Put(ctx, "date_request=20240101_120000/_SUCCESS", nil))
	require.NoError(t, st.Put(ctx, "date_request=20240102_090000/_SUCCESS", nil))

	data, ok := srv.Object("data_lake_1/date_request=20240101_120000/part-00000.parquet")
	require.True(t, ok)
	assert.Equal(t, []byte("PAR1"), data)

	got, err := st.Get(ctx, "date_request=20240101_120000/part-00000.parquet")
	require.NoError(t, err)
	assert.Equal(t, []byte("PAR1"), got)

	keys, err := st.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"date_request=20240101_120000/_SUCCESS",
		"date_request=20240101_120000/part-00000.parquet",
		"date_request=20240102_090000/_SUCCESS",
	}, keys)

	keys, err = st.List(ctx, "date_request=20240102_090000/")
	require.NoError(t, err)
	assert.Equal(t, []string{"date_request=20240102_090000/_SUCCESS"}, keys)

	assert.Equal(t, "s3://lake/data_lake_1/date_request=20240102_090000/_SUCCESS", st.URL("date_request=20240102_090000/_SUCCESS"))
}

func TestS3Store_GetMissing(t *testing.T) {
	st, _ := newTestS3Store(t, "data_lake_1/")

	_, err := st.Get(context.Background(), "date_request=20240101_120000/_SUCCESS")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestS3Store_ListFollowsContinuation(t *testing.T) {
	ctx := context.Background()
	st, srv := newTestS3Store(t, "")
	srv.PageSize = 2

	for i := range 5 {
		require.NoError(t, st.Put(ctx, fmt.Sprintf("leaf/part-%05d.parquet", i), nil))
	}

	keys, err := st.List(ctx, "leaf/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"leaf/part-00000.parquet",
		"leaf/part-00001.parquet",
		"leaf/part-00002.parquet",
		"leaf/part-00003.parquet",
		"leaf/part-00004.parquet",
	}, keys)
}

func TestS3Store_DeletePrefixBatches(t *testing.T) {
	ctx := context.Background()
	st, srv := newTestS3Store(t, "data_lake_2/")

	for i := range 1205 {
		srv.SetObject(fmt.Sprintf("data_lake_2/date_request=20240101_120000/location=L%04d/part-00000.parquet", i), nil)
	}
	srv.SetObject("data_lake_2/date_request=20240102_090000/_SUCCESS", nil)

	require.NoError(t, st.DeletePrefix(ctx, "date_request=20240101_120000/"))

	assert.Equal(t, []int{1000, 205}, srv.DeleteBatches())
	assert.Equal(t, []string{"data_lake_2/date_request=20240102_090000/_SUCCESS"}, srv.Keys())
}

func TestS3Store_DeletePrefixNothingToDelete(t *testing.T) {
	st, srv := newTestS3Store(t, "data_lake_2/")

	require.NoError(t, st.DeletePrefix(context.Background(), "date_request=20240101_120000/"))
	assert.Empty(t, srv.DeleteBatches())
}

func TestGCSStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	st, srv := newTestGCSStore(t, "data_lake_3/")

	require.NoError(t, st.Put(ctx, "tab_location_type_brewery/date_request=20240101_120000/part-00000.parquet", []byte("PAR1")))
	require.NoError(t, st.Put(ctx, "tab_location_type_brewery/date_request=20240101_120000/_SUCCESS", nil))

	data, ok := srv.Object("data_lake_3/tab_location_type_brewery/date_request=20240101_120000/part-00000.parquet")
	require.True(t, ok)
	assert.Equal(t, []byte("PAR1"), data)

	got, err := st.Get(ctx, "tab_location_type_brewery/date_request=20240101_120000/part-00000.parquet")
	require.NoError(t, err)
	assert.Equal(t, []byte("PAR1"), got)

	keys, err := st.List(ctx, "tab_location_type_brewery/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"tab_location_type_brewery/date_request=20240101_120000/_SUCCESS",
		"tab_location_type_brewery/date_request=20240101_120000/part-00000.parquet",
	}, keys)

	assert.Equal(t, "gs://lake/data_lake_3/tab_location_type_brewery/date_request=20240101_120000/_SUCCESS",
		st.URL("tab_location_type_brewery/date_request=20240101_120000/_SUCCESS"))
}

func TestGCSStore_GetMissing(t *testing.T) {
	st, _ := newTestGCSStore(t, "data_lake_3/")

	_, err := st.Get(context.Background(), "tab_location_type_brewery/date_request=20240101_120000/_SUCCESS")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestGCSStore_DeletePrefixLeavesSiblings(t *testing.T) {
	ctx := context.Background()
	st, srv := newTestGCSStore(t, "data_lake_3/")

	require.NoError(t, st.Put(ctx, "date_request=20240101_120000/part-00000.parquet", nil))
	require.NoError(t, st.Put(ctx, "date_request=20240101_120000/_SUCCESS", nil))
	require.NoError(t, st.Put(ctx, "date_request=20240102_090000/_SUCCESS", nil))

	require.NoError(t, st.DeletePrefix(ctx, "date_request=20240101_120000/"))

	assert.Equal(t, 2, srv.Deletes())
	assert.Equal(t, []string{"data_lake_3/date_request=20240102_090000/_SUCCESS"}, srv.Keys())
}
