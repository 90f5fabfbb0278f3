package engine

import (
	"bytes"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Archiver receives the retired log on compaction. Archiving is best
// effort: the caller logs failures and moves on.
type Archiver interface {
	Archive(name string, contents []byte) error
}

var _ Archiver = (*s3Archiver)(nil)

type s3Archiver struct {
	profile string
	region  string
	bucket  string
	client  *s3.S3
}

// NewS3Archiver archives retired logs to the given bucket, lz4-compressed,
// under archive/<name>.lz4. Credentials come from the named AWS profile.
func NewS3Archiver(profile, region, bucket string) Archiver {
	return &s3Archiver{
		profile: profile,
		region:  region,
		bucket:  bucket,
	}
}

func (a *s3Archiver) Archive(name string, contents []byte) error {
	if err := a.ensureClient(); err != nil {
		return err
	}
	var compressed bytes.Buffer
	zw := lz4.NewWriter(&compressed)
	if _, err := zw.Write(contents); err != nil {
		return errors.Wrapf(err, "compressing %q", name)
	}
	if err := zw.Close(); err != nil {
		return errors.Wrapf(err, "compressing %q", name)
	}
	_, err := a.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String("archive/" + name + ".lz4"),
		Body:   bytes.NewReader(compressed.Bytes()),
	})
	return errors.Wrapf(err, "uploading %q", name)
}

func (a *s3Archiver) ensureClient() error {
	if a.client != nil {
		return nil
	}
	s, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewSharedCredentials("", a.profile),
		Region:      aws.String(a.region),
	})
	if err != nil {
		return err
	}
	a.client = s3.New(s)
	return nil
}
