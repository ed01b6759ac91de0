package quadapk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PublishClient wraps an S3-compatible object store holding released
// APKs. Any S3 endpoint works; path-style addressing keeps R2 and minio
// happy.
type PublishClient struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewPublishClient builds a client from the publish configuration.
func NewPublishClient(cfg *Config) (*PublishClient, error) {
	p := cfg.Publish
	if p.Endpoint == "" || p.AccessKey == "" || p.SecretKey == "" || p.Bucket == "" {
		return nil, fmt.Errorf("publish credentials missing in configuration (endpoint, bucket, access_key, secret_key)")
	}
	region := p.Region
	if region == "" {
		region = "auto"
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: p.Endpoint}, nil
	})

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(p.AccessKey, p.SecretKey, "")),
		awsconfig.WithRegion(region),
	}
	if Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load publish config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &PublishClient{Client: client, Bucket: p.Bucket, Prefix: p.Prefix}, nil
}

func (c *PublishClient) key(name string) string {
	if c.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(c.Prefix, "/") + "/" + name
}

// Download fetches an object into memory.
func (c *PublishClient) Download(ctx context.Context, name string) ([]byte, error) {
	out, err := c.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Upload stores an in-memory object.
func (c *PublishClient) Upload(ctx context.Context, name string, body []byte) error {
	contentType := "application/octet-stream"
	if strings.HasSuffix(name, ".json") {
		contentType = "application/json"
	} else if strings.HasSuffix(name, ".apk") {
		contentType = "application/vnd.android.package-archive"
	}

	_, err := c.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.Bucket),
		Key:           aws.String(c.key(name)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	return err
}

// UploadFile streams a file from disk.
func (c *PublishClient) UploadFile(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if strings.HasSuffix(name, ".apk") {
		contentType = "application/vnd.android.package-archive"
	}

	_, err = c.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.Bucket),
		Key:           aws.String(c.key(name)),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// RemoteObject is the metadata of one stored object.
type RemoteObject struct {
	Key  string
	Size int64
}

// List returns the objects under the configured prefix.
func (c *PublishClient) List(ctx context.Context, under string) ([]RemoteObject, error) {
	var objects []RemoteObject
	paginator := s3.NewListObjectsV2Paginator(c.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.Bucket),
		Prefix: aws.String(c.key(under)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, RemoteObject{Key: *obj.Key, Size: *obj.Size})
		}
	}
	return objects, nil
}
