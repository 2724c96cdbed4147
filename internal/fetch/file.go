package fetch

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/nearme-discovery/internal/model"
)

// FileSource loads merchants from a local YAML or JSON seed file. The file holds
// either a bare list or a document with a top-level "merchants" key.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading path on every Fetch.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Fetch reads and decodes the seed file.
func (s *FileSource) Fetch(ctx context.Context) ([]model.Merchant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return DecodeMerchants(data)
}

// DecodeMerchants parses a YAML or JSON merchant list.
func DecodeMerchants(data []byte) ([]model.Merchant, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse merchant list: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var merchants []model.Merchant
		if err := doc.Decode(&merchants); err != nil {
			return nil, fmt.Errorf("failed to decode merchant list: %w", err)
		}
		return merchants, nil
	case yaml.MappingNode:
		var wrapped struct {
			Merchants []model.Merchant `yaml:"merchants"`
		}
		if err := doc.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode merchant list: %w", err)
		}
		return wrapped.Merchants, nil
	default:
		return nil, fmt.Errorf("merchant list must be a sequence or a mapping, got %v", doc.Tag)
	}
}
