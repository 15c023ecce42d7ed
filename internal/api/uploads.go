package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"vidstream/internal/media"
	"vidstream/internal/observability/metrics"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; larger
// parts spill to disk.
const maxUploadMemory = 32 << 20

var errMissingFile = errors.New("file part missing")

// stageFormFile copies a multipart file part into a local temp file so the
// media host can stream it from disk. The caller owns the returned path until
// Upload succeeds and removes it.
func stageFormFile(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", fmt.Errorf("%s: %w", field, errMissingFile)
		}
		return "", fmt.Errorf("read %s part: %w", field, err)
	}
	defer file.Close()

	staged, err := os.CreateTemp("", "vidstream-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", fmt.Errorf("stage %s upload: %w", field, err)
	}
	if _, err := io.Copy(staged, file); err != nil {
		staged.Close()
		os.Remove(staged.Name())
		return "", fmt.Errorf("stage %s upload: %w", field, err)
	}
	if err := staged.Close(); err != nil {
		os.Remove(staged.Name())
		return "", fmt.Errorf("stage %s upload: %w", field, err)
	}
	return staged.Name(), nil
}

// uploadFormAsset stages the named file part and hands it to the media host.
// The staged file is removed on upload failure so the temp dir never collects
// orphans.
func (h *Handler) uploadFormAsset(ctx context.Context, r *http.Request, field string) (media.Asset, error) {
	staged, err := stageFormFile(r, field)
	if err != nil {
		return media.Asset{}, err
	}
	asset, err := h.mediaHost().Upload(ctx, staged)
	if err != nil {
		os.Remove(staged)
		metrics.ObserveMediaUpload("failure")
		return media.Asset{}, fmt.Errorf("upload %s: %w", field, err)
	}
	metrics.ObserveMediaUpload("success")
	return asset, nil
}
