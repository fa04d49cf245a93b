// Package tasks defines the unit of work for the image pipeline and the
// on-disk manifest produced by the catalog client.
package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Task identifies one product image to resolve. ProductID builds the
// candidate page URLs; StorageKey names the output file.
type Task struct {
	ProductID  string `json:"product_id"`
	StorageKey string `json:"storage_key"`
}

// Validate rejects tasks missing either identifier.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ProductID) == "" {
		return fmt.Errorf("task is missing a product id")
	}
	if strings.TrimSpace(t.StorageKey) == "" {
		return fmt.Errorf("task %s is missing a storage key", t.ProductID)
	}
	return nil
}

// Validate checks every task and enforces uniqueness of both identifiers.
// The download gate's check-then-write sequence is only race-free when a
// storage key appears at most once per run, and the manifest keys tasks by
// product ID, so a repeated product ID would silently drop an entry on Save.
func Validate(list []Task) error {
	seenKeys := make(map[string]string, len(list))
	seenProducts := make(map[string]string, len(list))
	for _, t := range list {
		if err := t.Validate(); err != nil {
			return err
		}
		if prev, ok := seenKeys[t.StorageKey]; ok {
			return fmt.Errorf("storage key %s is shared by products %s and %s", t.StorageKey, prev, t.ProductID)
		}
		if prev, ok := seenProducts[t.ProductID]; ok {
			return fmt.Errorf("product %s appears twice, as %s and %s", t.ProductID, prev, t.StorageKey)
		}
		seenKeys[t.StorageKey] = t.ProductID
		seenProducts[t.ProductID] = t.StorageKey
	}
	return nil
}

// Load reads a manifest file. The format is a JSON object mapping product ID
// to storage key; tasks are returned sorted by storage key so runs are
// deterministic.
func Load(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var productMap map[string]string
	if err := json.Unmarshal(data, &productMap); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	list := make([]Task, 0, len(productMap))
	for productID, storageKey := range productMap {
		list = append(list, Task{ProductID: productID, StorageKey: storageKey})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StorageKey < list[j].StorageKey })

	if err := Validate(list); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return list, nil
}

// Save writes the manifest, creating parent directories as needed.
func Save(path string, list []Task) error {
	if err := Validate(list); err != nil {
		return err
	}

	productMap := make(map[string]string, len(list))
	for _, t := range list {
		productMap[t.ProductID] = t.StorageKey
	}
	data, err := json.MarshalIndent(productMap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}
