package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantBucket string
		wantKey    string
	}{
		{
			name:       "virtual-hosted style",
			url:        "https://docs.s3.us-east-2.amazonaws.com/users/u1/documents/d1/file.pdf",
			wantBucket: "docs",
			wantKey:    "users/u1/documents/d1/file.pdf",
		},
		{
			name:       "bucket with dots before s3",
			url:        "https://my-bucket.s3.eu-west-1.amazonaws.com/a/b",
			wantBucket: "my-bucket",
			wantKey:    "a/b",
		},
		{
			name:       "bare key fallback",
			url:        "https://example.com/some/key",
			wantBucket: "",
			wantKey:    "some/key",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bucket, key := ParseURL(tc.url)
			assert.Equal(t, tc.wantBucket, bucket)
			assert.Equal(t, tc.wantKey, key)
		})
	}
}

type stubBody struct {
	io.Reader
	closed bool
}

func (s *stubBody) Close() error {
	s.closed = true
	return nil
}

func TestObjectReaderKeepsRequestAliveUntilClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	body := &stubBody{Reader: strings.NewReader("object payload")}
	rc := &objectReader{body: body, cancel: cancel}

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "object payload", string(data))
	assert.NoError(t, ctx.Err(), "request context must survive the read")

	require.NoError(t, rc.Close())
	assert.True(t, body.closed)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
