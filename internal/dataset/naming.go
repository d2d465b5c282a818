package dataset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	whitespacePattern  = regexp.MustCompile(`\s+`)
	unsafeNamePattern  = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	collectionSuffix   = "_csv"
	maxDatasetNameSize = 80
)

// DatasetName derives a dataset name from an uploaded filename. runID is optional.
func DatasetName(filename, runID string) (string, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = whitespacePattern.ReplaceAllString(strings.TrimSpace(base), "_")
	base = unsafeNamePattern.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_-")
	if base == "" || base == "." {
		return "", fmt.Errorf("%w: filename %q does not yield a dataset name", ErrValidation, filename)
	}
	if len(base) > maxDatasetNameSize {
		base = base[:maxDatasetNameSize]
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return base, nil
	}
	return base + "_" + unsafeNamePattern.ReplaceAllString(runID, "_"), nil
}

func CollectionName(datasetName string) string {
	return datasetName + collectionSuffix
}

func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: collection name is required", ErrValidation)
	}
	if unsafeNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid collection name %q", ErrValidation, name)
	}
	return nil
}
