package downloader

import (
	"archive/zip"
	"fmt"
	"io"
)

// ValidateZip kiểm tra file có phải là một zip archive đọc được trọn vẹn hay
// không. Đọc toàn bộ từng entry để CRC được xác minh, tương đương testzip.
func ValidateZip(path string) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("invalid or corrupted ZIP file %s: %w", path, err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("corrupted entry %s in %s: %w", entry.Name, path, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("corrupted entry %s in %s: %w", entry.Name, path, err)
		}
	}

	return nil
}
