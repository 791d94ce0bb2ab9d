package fetcher

import (
	"encoding/json"
	"os"

	"github.com/thep200/codeql-fetcher/internal/resolver"
	"github.com/thep200/codeql-fetcher/pkg/errs"
)

// WriteCheckpoint ghi danh sách descriptor chưa xử lý ra file dưới dạng một
// JSON array phẳng. File luôn chứa đúng phần việc còn lại; sự tồn tại của nó
// sau một lần chạy bất thường là tín hiệu để operator chạy lại.
func WriteCheckpoint(path string, descriptors []resolver.DatabaseDescriptor) error {
	data, err := json.Marshal(descriptors)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.WrapResource(err, "failed to write checkpoint file %s", path)
	}
	return nil
}

// ReadCheckpoint đọc lại danh sách descriptor từ checkpoint file
func ReadCheckpoint(path string) ([]resolver.DatabaseDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var descriptors []resolver.DatabaseDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, err
	}
	return descriptors, nil
}
