package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"place-discovery-service/internal/config"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestArchive_PutsSnapshot(t *testing.T) {
	p := &fakePutter{}
	a := &SnapshotArchive{client: p, bucket: "places", prefix: "snapshots/"}
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	require.NoError(t, a.Archive(context.Background(), id, "name\nA\n"))

	assert.Equal(t, "places", aws.ToString(p.in.Bucket))
	assert.Equal(t, "snapshots/11111111-1111-1111-1111-111111111111.csv", aws.ToString(p.in.Key))
	assert.Equal(t, "name\nA\n", p.body)
}

func TestArchive_WrapsError(t *testing.T) {
	a := &SnapshotArchive{client: &fakePutter{err: errors.New("denied")}, bucket: "b"}

	err := a.Archive(context.Background(), uuid.New(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestNewSnapshotArchive_RequiresCredentials(t *testing.T) {
	_, err := NewSnapshotArchive(context.Background(), config.ArchiveConfig{Bucket: "b"})
	assert.Error(t, err)
}
