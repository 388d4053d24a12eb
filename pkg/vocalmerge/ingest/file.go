package ingest

import (
	"os"
	"path/filepath"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
)

func createFile(path string) (*os.File, error) {
	if err := utils.MakeDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
}
