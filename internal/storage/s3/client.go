package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"docdash/internal/config"
	"docdash/internal/port"
	"docdash/internal/resilience"
)

// Client implements port.Gateway directly against the OCR bucket, for
// deployments that hold bucket credentials instead of going through the API
// gateway. Results are read from ResultsPrefix + key.
type Client struct {
	client        *s3.Client
	uploader      *manager.Uploader
	bucket        string
	resultsPrefix string
	guard         *resilience.Guard

	forbiddenAsNotReady bool
}

// NewClient creates a new S3-backed gateway. guard may be nil.
func NewClient(cfg *config.S3Config, guard *resilience.Guard) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &Client{
		client:        client,
		uploader:      manager.NewUploader(client),
		bucket:        cfg.Bucket,
		resultsPrefix: cfg.ResultsPrefix,
		guard:         guard,

		forbiddenAsNotReady: cfg.ForbiddenAsNotReady,
	}, nil
}

// ResultKey returns the bucket key holding the analysis result for key.
func (c *Client) ResultKey(key string) string {
	prefix := c.resultsPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + key
}

func (c *Client) PutObject(ctx context.Context, input port.PutInput) (*port.GatewayResponse, error) {
	location := fmt.Sprintf("s3://%s/%s", c.bucket, input.Key)
	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return c.do(ctx, "s3.put", func(ctx context.Context) (*port.GatewayResponse, error) {
		result, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(input.Key),
			Body:        bytes.NewReader(input.Body),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return statusFromError(err, location, "s3 upload")
		}
		body := location
		if result.Location != "" {
			body = result.Location
		}
		return &port.GatewayResponse{StatusCode: http.StatusOK, Body: []byte(body), URL: location}, nil
	})
}

func (c *Client) GetResult(ctx context.Context, key string) (*port.GatewayResponse, error) {
	resultKey := c.ResultKey(key)
	location := fmt.Sprintf("s3://%s/%s", c.bucket, resultKey)

	return c.do(ctx, "s3.get_result", func(ctx context.Context) (*port.GatewayResponse, error) {
		result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(resultKey),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return &port.GatewayResponse{StatusCode: http.StatusNotFound, URL: location}, nil
			}
			resp, err := statusFromError(err, location, "s3 download")
			if resp != nil && resp.StatusCode == http.StatusForbidden && c.forbiddenAsNotReady {
				resp.StatusCode = http.StatusNotFound
			}
			return resp, err
		}
		defer func() { _ = result.Body.Close() }()

		data, err := io.ReadAll(result.Body)
		if err != nil {
			return nil, fmt.Errorf("s3 download read: %w", err)
		}
		return &port.GatewayResponse{StatusCode: http.StatusOK, Body: data, URL: location}, nil
	})
}

// Ping checks that the bucket exists and is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3 head bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) do(
	ctx context.Context,
	operation string,
	fn func(context.Context) (*port.GatewayResponse, error),
) (*port.GatewayResponse, error) {
	if c.guard == nil {
		return fn(ctx)
	}
	return c.guard.Do(ctx, operation, fn)
}

// statusFromError turns an S3 error that carries an HTTP status into a
// response, so the caller classifies it like a gateway answer. Errors without
// a status are transport failures.
func statusFromError(err error, location, op string) (*port.GatewayResponse, error) {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() != 0 {
		body := []byte(respErr.Error())
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			body, _ = json.Marshal(map[string]string{
				"code":    apiErr.ErrorCode(),
				"message": apiErr.ErrorMessage(),
			})
		}
		return &port.GatewayResponse{
			StatusCode: respErr.HTTPStatusCode(),
			Body:       body,
			URL:        location,
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}
