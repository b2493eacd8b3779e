// Package models defines the core data types for EvRAG.
package models

import (
	"time"
)

// Dataset is a labeled collection of queries used to evaluate a RAG pipeline.
type Dataset struct {
	// ID is the unique identifier for the dataset.
	ID string `json:"id"`

	// Name is the human-readable name of the dataset.
	Name string `json:"name"`

	// Description provides optional details about the dataset contents.
	Description string `json:"description,omitempty"`

	// Version identifies the dataset version. Runs pin the version they
	// were created against so results stay comparable after re-uploads.
	Version int `json:"version"`

	// TotalItems is the number of items in this version of the dataset.
	TotalItems int `json:"total_items"`

	// Items are the labeled queries. Immutable within a version.
	Items []DatasetItem `json:"items,omitempty"`

	// CreatedAt is when the dataset was created.
	CreatedAt time.Time `json:"created_at"`
}

// DatasetItem is a single labeled query: the query text plus the ground
// truth used to score retrieval and generation. Items are never mutated
// after creation.
type DatasetItem struct {
	// ID is the unique identifier for the item.
	ID string `json:"id"`

	// DatasetID references the owning dataset.
	DatasetID string `json:"dataset_id"`

	// Query is the user query sent to the RAG pipeline.
	Query string `json:"query"`

	// GroundTruthDocs is the set of document IDs considered relevant for
	// the query. May be empty; retrieval metrics define that case as 0.
	GroundTruthDocs []string `json:"ground_truth_docs,omitempty"`

	// GroundTruthAnswer is the optional reference answer. Generation
	// metrics that need it degrade to nil when absent.
	GroundTruthAnswer string `json:"ground_truth_answer,omitempty"`

	// Metadata carries opaque item annotations (source, tags, difficulty).
	Metadata map[string]any `json:"metadata,omitempty"`
}
