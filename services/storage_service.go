package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/disintegration/imaging"
	"github.com/pocketbase/pocketbase/core"
)

const (
	imagePrefix    = "businessImages"
	largeVariant   = "largeJPG_"
	thumbVariant   = "thumbJPG_"
	thumbMaxWidth  = 400
	thumbMaxHeight = 400
)

// StorageService stores business gallery images. Each upload is kept in
// two JPEG variants under businessImages/{uid}/: a full-size copy for the
// detail view and a bounded thumbnail for list screens.
type StorageService struct {
	app core.App
}

func NewStorageService(app core.App) *StorageService {
	return &StorageService{app: app}
}

func imageKey(businessUID, variant, filename string) string {
	return path.Join(imagePrefix, businessUID, variant+filename)
}

// UploadImage decodes the source image, re-encodes it as JPEG and writes
// both variants. The source must be a format imaging understands (JPEG,
// PNG, GIF, TIFF, BMP).
func (s *StorageService) UploadImage(businessUID, filename string, r io.Reader) error {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode image %s: %w", filename, err)
	}

	fsys, err := s.app.NewFilesystem()
	if err != nil {
		return fmt.Errorf("open filesystem: %w", err)
	}
	defer fsys.Close()

	var large bytes.Buffer
	if err := imaging.Encode(&large, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("encode image %s: %w", filename, err)
	}
	if err := fsys.Upload(large.Bytes(), imageKey(businessUID, largeVariant, filename)); err != nil {
		return fmt.Errorf("upload image %s: %w", filename, err)
	}

	thumb := imaging.Fit(img, thumbMaxWidth, thumbMaxHeight, imaging.Lanczos)
	var small bytes.Buffer
	if err := imaging.Encode(&small, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("encode thumbnail %s: %w", filename, err)
	}
	if err := fsys.Upload(small.Bytes(), imageKey(businessUID, thumbVariant, filename)); err != nil {
		return fmt.Errorf("upload thumbnail %s: %w", filename, err)
	}

	slog.Info("stored business image", "business", businessUID, "file", filename)
	return nil
}

// ServeImage streams one variant of a stored image. thumb selects the
// thumbnail; anything else serves the full-size copy.
func (s *StorageService) ServeImage(res http.ResponseWriter, req *http.Request, businessUID, filename string, thumb bool) error {
	fsys, err := s.app.NewFilesystem()
	if err != nil {
		return fmt.Errorf("open filesystem: %w", err)
	}
	defer fsys.Close()

	variant := largeVariant
	if thumb {
		variant = thumbVariant
	}
	return fsys.Serve(res, req, imageKey(businessUID, variant, filename), filename)
}

// DeleteImage removes both variants. Either delete may fail
// independently; both errors are reported.
func (s *StorageService) DeleteImage(businessUID, filename string) error {
	fsys, err := s.app.NewFilesystem()
	if err != nil {
		return fmt.Errorf("open filesystem: %w", err)
	}
	defer fsys.Close()

	return errors.Join(
		fsys.Delete(imageKey(businessUID, largeVariant, filename)),
		fsys.Delete(imageKey(businessUID, thumbVariant, filename)),
	)
}
