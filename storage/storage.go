// Package storage opens pipeline inputs and outputs that live on local disk
// or in S3.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/yargevad/filepathx"
)

// S3Client is the subset of the S3 API used for inputs and outputs.
type S3Client interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput,
		opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput,
		opts ...request.Option) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the shared AWS configuration.
var NewS3Client = func() (S3Client, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create AWS session")
	}
	return s3.New(sess), nil
}

// ParseS3URI splits `s3://bucket/key` into bucket and key.
func ParseS3URI(uri string) (bucket string, key string, ok bool) {
	rest := strings.TrimPrefix(uri, "s3://")
	if rest == uri {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// IsS3 reports whether `uri` uses the s3 scheme.
func IsS3(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// Expand
// Turns an input path into the list of files to read. Patterns containing
// glob metacharacters, including `**`, are matched and sorted; S3 URIs and
// plain paths are returned as is.
func Expand(pattern string) ([]string, error) {
	if IsS3(pattern) || !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepathx.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "bad input pattern %q", pattern)
	}
	paths := make([]string, 0, len(matches))
	for _, match := range matches {
		if stat, statErr := os.Stat(match); statErr == nil && !stat.IsDir() {
			paths = append(paths, match)
		}
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no files match %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// Input is an opened input with its size in bytes, or -1 if unknown.
type Input struct {
	io.ReadCloser
	Size int64
	Name string
}

// Open opens a local file or S3 object for reading.
func Open(ctx context.Context, client S3Client, uri string) (*Input, error) {
	if bucket, key, ok := ParseS3URI(uri); ok {
		if client == nil {
			return nil, errors.Errorf("no S3 client to read %s", uri)
		}
		out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "cannot get %s", uri)
		}
		size := int64(-1)
		if out.ContentLength != nil {
			size = *out.ContentLength
		}
		return &Input{ReadCloser: out.Body, Size: size, Name: uri}, nil
	}
	file, err := os.Open(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", uri)
	}
	size := int64(-1)
	if stat, statErr := file.Stat(); statErr == nil {
		size = stat.Size()
	}
	return &Input{ReadCloser: file, Size: size, Name: uri}, nil
}

// Output is a file being written. For S3 targets the file is staged locally
// and uploaded by Close.
type Output struct {
	*os.File
	ctx    context.Context
	client S3Client
	bucket string
	key    string
	closed bool
}

// Create creates or truncates a local file, or stages an S3 object.
func Create(ctx context.Context, client S3Client, uri string) (*Output, error) {
	if bucket, key, ok := ParseS3URI(uri); ok {
		if client == nil {
			return nil, errors.Errorf("no S3 client to write %s", uri)
		}
		staged, err := os.CreateTemp("", "codemask-*"+filepath.Ext(key))
		if err != nil {
			return nil, errors.Wrap(err, "cannot stage S3 output")
		}
		return &Output{File: staged, ctx: ctx, client: client,
			bucket: bucket, key: key}, nil
	}
	if dir := filepath.Dir(uri); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "cannot create %s", dir)
		}
	}
	file, err := os.Create(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create %s", uri)
	}
	return &Output{File: file, ctx: ctx}, nil
}

// Close closes the file and, for S3 targets, uploads and removes it.
func (out *Output) Close() error {
	if out.closed {
		return nil
	}
	out.closed = true
	if out.client == nil {
		return out.File.Close()
	}
	defer os.Remove(out.File.Name())
	if _, err := out.File.Seek(0, io.SeekStart); err != nil {
		out.File.Close()
		return errors.Wrap(err, "cannot rewind staged output")
	}
	_, putErr := out.client.PutObjectWithContext(out.ctx, &s3.PutObjectInput{
		Bucket: aws.String(out.bucket),
		Key:    aws.String(out.key),
		Body:   out.File,
	})
	closeErr := out.File.Close()
	if putErr != nil {
		return errors.Wrapf(putErr, "cannot upload s3://%s/%s", out.bucket,
			out.key)
	}
	return closeErr
}

// Discard closes the output without uploading it.
func (out *Output) Discard() error {
	if out.closed {
		return nil
	}
	out.closed = true
	err := out.File.Close()
	if out.client != nil {
		os.Remove(out.File.Name())
	}
	return err
}
