package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUUIDArrayValueAndScan(t *testing.T) {
	first := uuid.MustParse("7f1d3b0e-8f7c-4b61-9c1e-2b5f4c1a9d01")
	second := uuid.MustParse("1b2c3d4e-5f60-4718-8a9b-0c1d2e3f4a5b")

	value, err := UUIDArray{first, second}.Value()
	require.NoError(t, err)
	require.Equal(t, "{"+first.String()+","+second.String()+"}", value)

	var scanned UUIDArray
	require.NoError(t, scanned.Scan([]byte(`{"`+first.String()+`", `+second.String()+`}`)))
	require.Equal(t, UUIDArray{first, second}, scanned)
	require.True(t, scanned.Contains(second))
	require.False(t, scanned.Contains(uuid.New()))
}

func TestUUIDArrayEmpty(t *testing.T) {
	value, err := UUIDArray(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "{}", value)

	var scanned UUIDArray
	require.NoError(t, scanned.Scan(nil))
	require.Empty(t, scanned)

	require.NoError(t, scanned.Scan("{}"))
	require.Empty(t, scanned)
}

func TestUUIDArrayScanErrors(t *testing.T) {
	var scanned UUIDArray
	require.Error(t, scanned.Scan(42))
	require.Error(t, scanned.Scan("{not-a-uuid}"))
}
