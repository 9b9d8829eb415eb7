// Package archive は終局した対局の正本をS3互換ストレージに保管する。
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hitoshi/banmen/internal/completion"
)

// ObjectPutter はs3.ClientのPutObjectだけを切り出したインターフェース。
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config はS3互換ストレージの接続設定。
// Endpointを指定した場合はR2やMinIOなどのS3互換サービスとしてパス形式で接続する。
type Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client は設定からs3.Clientを生成する。
// アクセスキーが空の場合はSDKの既定の認証情報チェーンを使う。
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive storage config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Archiver は終局時のフックとして対局の正本をJSONで保管する。
type Archiver struct {
	client ObjectPutter
	bucket string
}

// NewArchiver はArchiverを生成する。
func NewArchiver(client ObjectPutter, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

// ObjectKey は対局の保管先キーを返す。ゲーム種別と終局年月で分ける。
func ObjectKey(c completion.Completed) string {
	return path.Join("sessions", c.GameType, c.CompletedAt.UTC().Format("2006/01"), c.SessionID+".json")
}

// OnSessionCompleted は対局の正本を保管する。同じキーへの再保管は上書きになる。
func (a *Archiver) OnSessionCompleted(ctx context.Context, c completion.Completed) error {
	if c.Session == nil {
		return fmt.Errorf("archive: session %s has no record", c.SessionID)
	}
	body, err := json.Marshal(c.Session)
	if err != nil {
		return fmt.Errorf("archive: failed to encode session %s: %w", c.SessionID, err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ObjectKey(c)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: failed to upload session %s: %w", c.SessionID, err)
	}
	return nil
}
