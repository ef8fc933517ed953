package capture

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/streambridge/internal/errors"
)

// FileSource is a Source backed by an open audio file
type FileSource interface {
	Source
	io.Closer
}

// OpenFile opens a WAV or FLAC file, chosen by extension
func OpenFile(path string, chunk time.Duration, paced bool) (FileSource, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return OpenWAVFile(path, chunk, paced)
	case ".flac":
		return OpenFLACFile(path, chunk, paced)
	default:
		return nil, errors.Newf("unsupported audio file type %q", ext).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
}
