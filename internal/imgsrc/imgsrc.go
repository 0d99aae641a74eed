// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package imgsrc carrega imagens de origem a partir do sistema de
// arquivos local ou, quando o argumento tem a forma "s3://bucket/key",
// de um bucket S3.
package imgsrc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nishisan-dev/flut/internal/ferrors"
)

const s3Scheme = "s3://"

// Load resolve path — um caminho local ou um URI "s3://bucket/key" — e
// decodifica o conteúdo em uma *image.RGBA convertida.
func Load(ctx context.Context, path string) (*image.RGBA, error) {
	var (
		data []byte
		err  error
	)

	if strings.HasPrefix(path, s3Scheme) {
		data, err = loadFromS3(ctx, path)
	} else {
		data, err = loadFromFile(path)
	}
	if err != nil {
		return nil, err
	}

	img, _, decErr := image.Decode(bytes.NewReader(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: decoding %q: %v", ferrors.ErrDecode, path, decErr)
	}

	rgba := image.NewRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba, nil
}

func loadFromFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading image %q: %v", ferrors.ErrConfig, path, err)
	}
	return data, nil
}

// parseS3URI separa "s3://bucket/key" em (bucket, key).
func parseS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, s3Scheme)
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("%w: malformed s3 uri %q, expected s3://bucket/key", ferrors.ErrConfig, uri)
	}
	return rest[:idx], rest[idx+1:], nil
}

func loadFromS3(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS config: %v", ferrors.ErrConfig, err)
	}

	client := s3.NewFromConfig(cfg)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching s3://%s/%s: %v", ferrors.ErrIO, bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading s3://%s/%s body: %v", ferrors.ErrIO, bucket, key, err)
	}
	return data, nil
}
