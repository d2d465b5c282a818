package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const collectionsRoot = "collections"

// CollectionObjectPath is the key of one imported batch of a collection.
func CollectionObjectPath(collection, objectID string) (string, error) {
	if err := validatePathComponent(collection, "collection"); err != nil {
		return "", err
	}
	if err := validatePathComponent(objectID, "object id"); err != nil {
		return "", err
	}
	return path.Join(collectionsRoot, collection, objectID+".parquet"), nil
}

func CollectionPrefix(collection string) (string, error) {
	if err := validatePathComponent(collection, "collection"); err != nil {
		return "", err
	}
	return path.Join(collectionsRoot, collection) + "/", nil
}

// StagedUploadPath keys an uploaded CSV that waits for ingestion. The original
// file name travels in object metadata.
func StagedUploadPath(prefix, uploadID string) (string, error) {
	if err := validatePathComponent(uploadID, "upload id"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return path.Join(prefix, uploadID+".csv"), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
