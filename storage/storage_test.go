package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S3MockClient is a mock implementation of S3Client.
type S3MockClient struct {
	GetObjectOutputs map[string]*s3.GetObjectOutput // Map object keys to GetObjectOutput
	GetObjectError   error
	PutObjects       map[string]string
	PutObjectError   error
}

func (m *S3MockClient) GetObjectWithContext(ctx aws.Context,
	input *s3.GetObjectInput, opts ...request.Option) (
	*s3.GetObjectOutput,
	error,
) {
	if m.GetObjectError != nil {
		return nil, m.GetObjectError
	}
	out, ok := m.GetObjectOutputs[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return out, nil
}

func (m *S3MockClient) PutObjectWithContext(ctx aws.Context,
	input *s3.PutObjectInput, opts ...request.Option) (
	*s3.PutObjectOutput,
	error,
) {
	if m.PutObjectError != nil {
		return nil, m.PutObjectError
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	if m.PutObjects == nil {
		m.PutObjects = make(map[string]string)
	}
	m.PutObjects[*input.Bucket+"/"+*input.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func TestParseS3URI(t *testing.T) {
	bucket, key, ok := ParseS3URI("s3://data/spp/train.jsonl")
	assert.True(t, ok)
	assert.Equal(t, "data", bucket)
	assert.Equal(t, "spp/train.jsonl", key)

	for _, bad := range []string{"data/train.jsonl", "s3://", "s3://bucket",
		"s3://bucket/"} {
		_, _, ok = ParseS3URI(bad)
		assert.False(t, ok, bad)
	}
}

func TestOpenS3(t *testing.T) {
	content := `{"code": "x = 1"}` + "\n"
	mockSvc := &S3MockClient{
		GetObjectOutputs: map[string]*s3.GetObjectOutput{
			"bucket/train.jsonl": {
				Body:          io.NopCloser(strings.NewReader(content)),
				ContentLength: aws.Int64(int64(len(content))),
			},
		},
	}
	in, err := Open(context.Background(), mockSvc, "s3://bucket/train.jsonl")
	require.NoError(t, err)
	defer in.Close()
	assert.EqualValues(t, len(content), in.Size)
	body, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, content, string(body))

	_, err = Open(context.Background(), mockSvc, "s3://bucket/missing")
	assert.Error(t, err)
	_, err = Open(context.Background(), nil, "s3://bucket/train.jsonl")
	assert.Error(t, err)
}

func TestCreateS3UploadsOnClose(t *testing.T) {
	mockSvc := &S3MockClient{}
	out, err := Create(context.Background(), mockSvc, "s3://bucket/out.jsonl")
	require.NoError(t, err)
	staged := out.Name()
	_, err = out.WriteString("line\n")
	require.NoError(t, err)
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	assert.Equal(t, "line\n", mockSvc.PutObjects["bucket/out.jsonl"])
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateS3Discard(t *testing.T) {
	mockSvc := &S3MockClient{}
	out, err := Create(context.Background(), mockSvc, "s3://bucket/out.jsonl")
	require.NoError(t, err)
	require.NoError(t, out.Discard())
	assert.Empty(t, mockSvc.PutObjects)
}

func TestCreateLocal(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	out, err := Create(context.Background(), nil, target)
	require.NoError(t, err)
	_, err = out.WriteString("{}\n")
	require.NoError(t, err)
	require.NoError(t, out.Close())

	in, err := Open(context.Background(), nil, target)
	require.NoError(t, err)
	defer in.Close()
	assert.EqualValues(t, 3, in.Size)
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b/2.jsonl", "a/1.jsonl", "a/x/3.jsonl",
		"a/skip.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))
	}

	paths, err := Expand(filepath.Join(dir, "**", "*.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a/1.jsonl"),
		filepath.Join(dir, "a/x/3.jsonl"),
		filepath.Join(dir, "b/2.jsonl"),
	}, paths)

	paths, err = Expand("spp_train.jsonl")
	require.NoError(t, err)
	assert.Equal(t, []string{"spp_train.jsonl"}, paths)

	_, err = Expand(filepath.Join(dir, "*.parquet"))
	assert.Error(t, err)
}
