package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// Encrypted object layout: magic(8) + salt(16) + nonce(12) + sealed data.
const (
	gcmMagic       = "GCMB4TCH"
	pbkdf2Iters    = 100_000
	saltLen        = 16
)

// Uploader pushes run artifacts (merged output, progress snapshot) to S3.
// When a passphrase is configured the payload is AES-GCM encrypted first;
// classification output can carry customer text.
type Uploader struct {
	uploader   *manager.Uploader
	bucket     string
	prefix     string
	passphrase string
}

// NewUploader builds an S3 uploader. Static credentials from
// AIBATCH_S3_ACCESS_KEY / AIBATCH_S3_SECRET_KEY take precedence over the
// default AWS chain.
func NewUploader(ctx context.Context, bucket, prefix, passphrase string) (*Uploader, error) {
	var opts []func(*awscfg.LoadOptions) error
	if ak, sk := os.Getenv("AIBATCH_S3_ACCESS_KEY"), os.Getenv("AIBATCH_S3_SECRET_KEY"); ak != "" && sk != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, ""),
		))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg)
	return &Uploader{
		uploader:   manager.NewUploader(cli),
		bucket:     bucket,
		prefix:     prefix,
		passphrase: passphrase,
	}, nil
}

// UploadFile stores a local file under <prefix>/<runID>/<basename>.
func (u *Uploader) UploadFile(ctx context.Context, runID, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", localPath, err)
	}

	key := path.Join(u.prefix, runID, filepath.Base(localPath))
	contentType := "text/csv"
	if u.passphrase != "" {
		if data, err = sealGCM(data, u.passphrase); err != nil {
			return fmt.Errorf("encrypt artifact %s: %w", localPath, err)
		}
		contentType = "application/octet-stream"
	}

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"run-id": runID,
			"name":   filepath.Base(localPath),
		},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}

	log.Info().
		Str("bucket", u.bucket).
		Str("key", key).
		Int("size", len(data)).
		Bool("encrypted", u.passphrase != "").
		Msg("uploaded run artifact")
	return nil
}

// sealGCM encrypts data with a key derived from the passphrase.
func sealGCM(data []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iters, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}
