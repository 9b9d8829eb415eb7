package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/banmen/internal/completion"
	"github.com/hitoshi/banmen/internal/model"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, b)
	return &s3.PutObjectOutput{}, nil
}

func completed() completion.Completed {
	s := &model.Session{ID: "g1", GameType: "nim", Completed: true, Winners: []int{2}}
	return completion.Completed{
		SessionID:   "g1",
		GameType:    "nim",
		Winners:     []int{2},
		CompletedAt: time.Date(2026, 7, 9, 23, 0, 0, 0, time.FixedZone("JST", 9*3600)),
		Session:     s,
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "sessions/nim/2026/07/g1.json", ObjectKey(completed()))
}

func TestArchiver_UploadsSession(t *testing.T) {
	putter := &fakePutter{}
	a := NewArchiver(putter, "archive-bucket")

	require.NoError(t, a.OnSessionCompleted(context.Background(), completed()))
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "archive-bucket", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "sessions/nim/2026/07/g1.json", aws.ToString(putter.inputs[0].Key))
	assert.Equal(t, "application/json", aws.ToString(putter.inputs[0].ContentType))

	var got model.Session
	require.NoError(t, json.Unmarshal(putter.bodies[0], &got))
	assert.Equal(t, []int{2}, got.Winners)
}

func TestArchiver_Errors(t *testing.T) {
	a := NewArchiver(&fakePutter{err: errors.New("denied")}, "b")
	err := a.OnSessionCompleted(context.Background(), completed())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")

	c := completed()
	c.Session = nil
	assert.Error(t, NewArchiver(&fakePutter{}, "b").OnSessionCompleted(context.Background(), c))
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(context.Background(), Config{
		Bucket:          "b",
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "auto", client.Options().Region)
	assert.True(t, client.Options().UsePathStyle)
}
