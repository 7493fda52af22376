package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	objects map[string][]byte
	getErr  error
	putErr  error
	lastPut *s3.PutObjectInput
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.lastPut = in
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3State(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object is not found", func(t *testing.T) {
		state := NewS3State(newMockS3Client(), "bucket", "densities.json")
		_, err := state.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save then load", func(t *testing.T) {
		client := newMockS3Client()
		state := NewS3State(client, "bucket", "phrases.json")

		require.NoError(t, state.Save(ctx, []byte(`{"a":1}`)))
		assert.Equal(t, "application/json", aws.ToString(client.lastPut.ContentType))

		data, err := state.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), data)
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		client := newMockS3Client()
		client.getErr = errors.New("access denied")
		client.putErr = errors.New("slow down")
		state := NewS3State(client, "bucket", "k")

		_, err := state.Load(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "access denied")

		assert.ErrorContains(t, state.Save(ctx, nil), "slow down")
	})
}
