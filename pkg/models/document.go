package models

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentFormat is the encoding of a workflow document.
type DocumentFormat string

const (
	DocumentFormatJSON DocumentFormat = "json"
	DocumentFormatYAML DocumentFormat = "yaml"
)

// FormatFromPath picks the document format from a file extension, defaulting to JSON.
func FormatFromPath(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DocumentFormatYAML
	default:
		return DocumentFormatJSON
	}
}

// DecodeWorkflow parses a workflow document. Structural problems are not reported here;
// they are the validator's job.
func DecodeWorkflow(data []byte, format DocumentFormat) (*Workflow, error) {
	var workflow Workflow

	switch format {
	case DocumentFormatYAML:
		if err := yaml.Unmarshal(data, &workflow); err != nil {
			return nil, fmt.Errorf("failed to decode yaml workflow: %w", err)
		}
	case DocumentFormatJSON:
		if err := json.Unmarshal(data, &workflow); err != nil {
			return nil, fmt.Errorf("failed to decode json workflow: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported workflow document format: %s", format)
	}

	return &workflow, nil
}
