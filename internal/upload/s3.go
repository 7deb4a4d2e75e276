package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config はS3互換オブジェクトストレージの接続設定。
type S3Config struct {
	// Bucket は保存先バケット名。
	Bucket string
	// Region はリージョン。MinIOの場合も任意の値を指定する。
	Region string
	// Endpoint はS3互換エンドポイント（例: "http://127.0.0.1:9000"）。空の場合はAWSの既定。
	// 指定した場合はパス形式のアドレッシングを使用する。
	Endpoint string
	// AccessKey と SecretKey は静的な認証情報。空の場合はAWS SDKの既定の解決順に従う。
	AccessKey string
	SecretKey string
	// Prefix はオブジェクトキーの接頭辞。
	Prefix string
}

// S3Store はS3互換オブジェクトストレージに保存するFileStore実装。
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ FileStore = (*S3Store)(nil)

// NewS3Store はS3Configからクライアントを構築してS3Storeを返す。
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3のバケット名が指定されていません")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient は既存のクライアントからS3Storeを生成する。
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Save はオブジェクトをPUTし、"s3://<bucket>/<key>" 形式のURIを返す。
// rがio.Seekerを実装していない場合、TLSでないエンドポイントでは署名に失敗する。
func (s *S3Store) Save(ctx context.Context, name, mimeType string, r io.Reader) (string, error) {
	key := path.Join(s.prefix, path.Base(name))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("S3へのアップロードに失敗: bucket=%s, key=%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
