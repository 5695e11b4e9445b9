package minio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "documents"})
	require.Error(t, err)

	_, err = New(context.Background(), Config{Endpoint: "localhost:9000"})
	require.Error(t, err)
}
