//go:build !wasip1 && !js

package resources

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// readMmap maps `file` read-only. The returned function unmaps it.
func readMmap(file *os.File) ([]byte, func() error, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() == 0 {
		// Zero-length mappings are rejected by the OS.
		return []byte{}, func() error { return nil }, nil
	}
	fileMmap, mmapErr := mmap.Map(file, mmap.RDONLY, 0)
	if mmapErr != nil {
		return nil, nil, mmapErr
	}
	return fileMmap, fileMmap.Unmap, nil
}
