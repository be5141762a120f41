package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// IUploader 定義了上傳物件並取得公開網址的介面
type IUploader interface {
	Upload(ctx context.Context, key, contentType string, content []byte) (string, error)
}

// Config 是連線 S3 相容儲存服務所需的設定
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
	UsePathStyle    bool
}

type S3Operator struct {
	// client 是 S3 客戶端。
	client *s3.Client
	// bucket 是 S3 存儲桶的名稱。
	bucket string
	// publicEndpoint 是 S3 存儲桶的公開 Endpoint。
	publicEndpoint *url.URL
}

// NewS3Operator 依照設定建立 S3 客戶端
func NewS3Operator(ctx context.Context, config Config) (*S3Operator, error) {
	const op = "NewS3Operator"
	region := config.Region
	if region == "" {
		region = "auto"
	}
	cfg, err := awsCfg.LoadDefaultConfig(
		ctx,
		awsCfg.WithBaseEndpoint(config.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")),
		awsCfg.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = config.UsePathStyle
	})
	return NewS3OperatorWithClient(client, config.Bucket, config.PublicBaseURL)
}

func NewS3OperatorWithClient(client *s3.Client, bucket, publicBaseURL string) (*S3Operator, error) {
	const op = "NewS3OperatorWithClient"
	if bucket == "" {
		return nil, fmt.Errorf("[%s] Bucket cannot be empty", op)
	}
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &S3Operator{client: client, bucket: bucket, publicEndpoint: publicEndpoint}, nil
}

// Upload 上傳檔案並回傳公開網址
func (s *S3Operator) Upload(ctx context.Context, key, contentType string, content []byte) (string, error) {
	const op = "Upload"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, key=%s, err=%w", op, key, err)
	}
	return s.publicEndpoint.JoinPath(key).String(), nil
}

var _ IUploader = (*S3Operator)(nil)
