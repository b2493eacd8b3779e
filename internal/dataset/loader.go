// Package dataset loads evaluation datasets from YAML or JSON files.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/evraghq/evrag/pkg/models"
)

// fileFormat is the on-disk dataset shape. Ground truth fields accept
// both snake_case keys in YAML and JSON.
type fileFormat struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Version     int        `json:"version" yaml:"version"`
	Items       []fileItem `json:"items" yaml:"items"`
}

type fileItem struct {
	ID                string         `json:"id" yaml:"id"`
	Query             string         `json:"query" yaml:"query"`
	GroundTruthDocs   []string       `json:"ground_truth_docs" yaml:"ground_truth_docs"`
	GroundTruthAnswer string         `json:"ground_truth_answer" yaml:"ground_truth_answer"`
	Metadata          map[string]any `json:"metadata" yaml:"metadata"`
}

// Load reads a dataset file, validates it, and converts it to the model
// form. The format is chosen by extension: .json for JSON, anything
// else is parsed as YAML.
func Load(path string) (*models.Dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var file fileFormat
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return build(&file)
}

func build(file *fileFormat) (*models.Dataset, error) {
	if file.Name == "" {
		return nil, fmt.Errorf("dataset missing name")
	}
	if len(file.Items) == 0 {
		return nil, fmt.Errorf("dataset has no items")
	}

	ds := &models.Dataset{
		ID:          uuid.NewString(),
		Name:        file.Name,
		Description: file.Description,
		Version:     file.Version,
		TotalItems:  len(file.Items),
		CreatedAt:   time.Now().UTC(),
	}
	if ds.Version <= 0 {
		ds.Version = 1
	}

	seen := make(map[string]struct{}, len(file.Items))
	for i, item := range file.Items {
		if item.Query == "" {
			return nil, fmt.Errorf("item %d missing query", i)
		}
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate item id %q", id)
		}
		seen[id] = struct{}{}

		ds.Items = append(ds.Items, models.DatasetItem{
			ID:                id,
			DatasetID:         ds.ID,
			Query:             item.Query,
			GroundTruthDocs:   item.GroundTruthDocs,
			GroundTruthAnswer: item.GroundTruthAnswer,
			Metadata:          item.Metadata,
		})
	}
	return ds, nil
}
