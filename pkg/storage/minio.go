// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"llm-eval-go/internal/config"
	"llm-eval-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// DataSourcePrefix 是数据源文件在存储桶中的前缀。
const DataSourcePrefix = "data-sources"

// ExportPrefix 是目录导出文件在存储桶中的前缀。
const ExportPrefix = "exports"

// ObjectStore 是业务层使用的对象存储能力。
type ObjectStore interface {
	Put(ctx context.Context, object string, r io.Reader, size int64, contentType string) error
	Mirror(ctx context.Context, prefix, dir string) (int, error)
	PresignedURL(ctx context.Context, object string, expiry time.Duration) (string, error)
}

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := MinioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
}

// MinioStore 基于 minio-go 实现 ObjectStore。
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 创建 MinioStore。
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// DataSourceObject 返回数据源文件的对象名。
func DataSourceObject(configID, fileName string) string {
	return path.Join(DataSourcePrefix, configID, path.Base(filepath.ToSlash(fileName)))
}

// DataSourceDir 返回数据源在存储桶中的前缀，带结尾斜杠。
func DataSourceDir(configID string) string {
	return path.Join(DataSourcePrefix, configID) + "/"
}

// ExportObject 返回目录导出文件的对象名。
func ExportObject(catalogID, format string) string {
	return path.Join(ExportPrefix, catalogID+"."+format)
}

// Put 上传对象。
func (s *MinioStore) Put(ctx context.Context, object string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, object, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", object, err)
	}
	return nil
}

// mirrorParallelism 是同步数据源时并发下载的对象数。
const mirrorParallelism = 4

// Mirror 把 prefix 下的所有对象下载到 dir，保持相对路径，返回文件数。
func (s *MinioStore) Mirror(ctx context.Context, prefix, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	var count atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mirrorParallelism)
	for obj := range s.client.ListObjects(gctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			if werr := g.Wait(); werr != nil {
				return int(count.Load()), werr
			}
			return int(count.Load()), fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		target, err := LocalPath(dir, prefix, obj.Key)
		if err != nil {
			log.Warnf("[Storage] 跳过对象 %s: %v", obj.Key, err)
			continue
		}
		key := obj.Key
		g.Go(func() error {
			if err := s.client.FGetObject(gctx, s.bucket, key, target, minio.GetObjectOptions{}); err != nil {
				return fmt.Errorf("download %s: %w", key, err)
			}
			count.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(count.Load()), err
	}
	log.Infof("[Storage] 已将 %s 下的 %d 个对象同步到 %s", prefix, count.Load(), dir)
	return int(count.Load()), nil
}

// PresignedURL generates a presigned URL for a given object.
func (s *MinioStore) PresignedURL(ctx context.Context, object string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, object, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}

// LocalPath 把对象名映射为 dir 下的本地路径，拒绝越出 dir 的对象名。
func LocalPath(dir, prefix, key string) (string, error) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if rel == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("object %q is a directory marker", key)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("object %q escapes target dir", key)
	}
	return filepath.Join(dir, clean), nil
}
