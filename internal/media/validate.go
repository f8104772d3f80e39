package media

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// jpegMagic is the JPEG SOI marker followed by the first byte of the next
// segment marker.
var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// ValidateThumbnail confirms an extracted artifact is safe to hand to the
// publisher: non-empty, within the upload size limit, carrying JPEG magic
// bytes, fully decodable, and within the dimension bounds. A corrupt or
// partially written extraction must never reach the remote API.
func ValidateThumbnail(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat: %w", ErrInvalidFormat, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidFormat)
	}
	if info.Size() > MaxThumbnailBytes {
		return fmt.Errorf("%w: %d bytes", ErrArtifactTooLarge, info.Size())
	}

	f, err := os.Open(path) // #nosec G304 - path is produced by this process
	if err != nil {
		return fmt.Errorf("%w: open: %w", ErrInvalidFormat, err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(jpegMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: read header: %w", ErrInvalidFormat, err)
	}
	if !bytes.Equal(header, jpegMagic) {
		return fmt.Errorf("%w: missing JPEG magic bytes", ErrInvalidFormat)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("%w: decode: %w", ErrInvalidFormat, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxThumbnailWidth || bounds.Dy() > MaxThumbnailHeight {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d",
			ErrInvalidFormat, bounds.Dx(), bounds.Dy(), MaxThumbnailWidth, MaxThumbnailHeight)
	}

	return nil
}
