package utils

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// LoadJSON decodes the JSON file at path into out.
func LoadJSON(path string, out interface{}) error {
	//nolint:gosec
	configFile, err := os.Open(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "error opening JSON file %q", path)
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(out); err != nil {
		return errors.Wrapf(err, "error parsing JSON file %q", path)
	}
	return nil
}
