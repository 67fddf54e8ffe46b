package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ObjectFetcher downloads model weights from object storage.
type ObjectFetcher interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	DownloadObject(ctx context.Context, objectKey, destPath string) error
}

// WeightStore resolves "<dir>/<model>.onnx", pulling the file from object
// storage under "<prefix>/<model>.onnx" when it is missing locally.
type WeightStore struct {
	dir     string
	prefix  string
	fetcher ObjectFetcher
}

func NewWeightStore(dir, prefix string, fetcher ObjectFetcher) *WeightStore {
	return &WeightStore{dir: dir, prefix: strings.Trim(prefix, "/"), fetcher: fetcher}
}

func (w *WeightStore) Path(ctx context.Context, model string) (string, error) {
	if strings.TrimSpace(model) == "" || strings.ContainsAny(model, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	filename := model + ".onnx"
	local := filepath.Join(w.dir, filename)

	if _, err := os.Stat(local); err == nil {
		return local, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat model weights %s: %w", local, err)
	}

	if w.fetcher == nil {
		return "", fmt.Errorf("model weights not found: %s", local)
	}

	key := path.Join(w.prefix, filename)
	exists, err := w.fetcher.ObjectExists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check model weights %s: %w", key, err)
	}
	if !exists {
		return "", fmt.Errorf("model weights not found locally or in object storage: %s", key)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	tmp := local + ".part"
	if err := w.fetcher.DownloadObject(ctx, key, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download model weights %s: %w", key, err)
	}
	if err := os.Rename(tmp, local); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("install model weights: %w", err)
	}
	return local, nil
}
