package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pwatch/internal/config"
)

type fakePutter struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = *in.Bucket
	f.key = *in.Key
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &s3.PutObjectOutput{}, nil
}

func TestUploadPutsFileUnderDayKey(t *testing.T) {
	local := filepath.Join(t.TempDir(), "2025-03-01.parquet")
	require.NoError(t, os.WriteFile(local, []byte("PAR1"), 0o644))

	putter := &fakePutter{}
	u := NewWithClient(putter, "bucket", "/offers/", zerolog.Nop())

	key, err := u.Upload(context.Background(), local, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, "offers/2025-03-01.parquet", key)
	assert.Equal(t, "bucket", putter.bucket)
	assert.Equal(t, key, putter.key)
	assert.Equal(t, []byte("PAR1"), putter.body)
}

func TestUploadErrors(t *testing.T) {
	u := NewWithClient(&fakePutter{}, "bucket", "", zerolog.Nop())
	_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), "2025-03-01")
	assert.Error(t, err)

	local := filepath.Join(t.TempDir(), "f.parquet")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))
	boom := errors.New("access denied")
	u = NewWithClient(&fakePutter{err: boom}, "bucket", "", zerolog.Nop())
	_, err = u.Upload(context.Background(), local, "2025-03-01")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "2025-03-01.parquet", u.Key("2025-03-01"))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), config.ArchiveConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
