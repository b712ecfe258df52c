package dataset

import (
	"path/filepath"
	"strings"
)

// DetectDatasetID infers the dataset identifier and its conventional
// target column from the file name. Unknown files fall back to the bare
// file name with target auto-detection left to the loader.
func DetectDatasetID(path string) (id, target string) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "automobile"):
		return "automobile", "mpg"
	case strings.Contains(name, "concrete"):
		return "concrete", "concrete_compressive_strength"
	case strings.Contains(name, "loan"):
		return "loan", "loan_status"
	default:
		return strings.TrimSuffix(name, filepath.Ext(name)), ""
	}
}
