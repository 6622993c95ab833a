package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// WriteArchive streams assets as a zip archive to w. A zero modified time
// leaves entry timestamps unset.
func WriteArchive(w io.Writer, assets []Asset, modified time.Time) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if _, dup := seen[asset.Filename]; dup {
			return fmt.Errorf("zip: duplicate entry %q", asset.Filename)
		}
		seen[asset.Filename] = struct{}{}
		hdr := &zip.FileHeader{Name: asset.Filename, Method: zip.Deflate}
		if !modified.IsZero() {
			hdr.Modified = modified
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	return zw.Close()
}
