package workflow

import (
	"sync"

	"github.com/canvasflow/canvasflow/pkg/models"
)

type typePair struct {
	producer models.NodeType
	consumer models.NodeType
}

// CompatibilityTable decides which producer node types may feed which consumer node types.
// Pairs that were never allowed are denied.
type CompatibilityTable struct {
	mu      sync.RWMutex
	allowed map[typePair]struct{}
}

// NewCompatibilityTable returns an empty table that denies every pair.
func NewCompatibilityTable() *CompatibilityTable {
	return &CompatibilityTable{allowed: make(map[typePair]struct{})}
}

// DefaultCompatibilityTable returns the table for the built-in node types.
func DefaultCompatibilityTable() *CompatibilityTable {
	t := NewCompatibilityTable()

	outputs := []models.NodeType{models.NodeTypeOutputSave, models.NodeTypeOutputDownload}

	t.Allow(models.NodeTypeInputText, append([]models.NodeType{
		models.NodeTypeProcessAIImage,
		models.NodeTypeProcessAIVideo,
		models.NodeTypeProcessAIAudio,
		models.NodeTypeProcessCode,
	}, outputs...)...)

	t.Allow(models.NodeTypeInputMedia, append([]models.NodeType{
		models.NodeTypeProcessAIImage,
		models.NodeTypeProcessAIVideo,
		models.NodeTypeProcessAIAudio,
		models.NodeTypeTransformUpscale,
		models.NodeTypeTransformRemoveBG,
	}, outputs...)...)

	t.Allow(models.NodeTypeProcessAIImage, append([]models.NodeType{
		models.NodeTypeProcessAIImage,
		models.NodeTypeProcessAIVideo,
		models.NodeTypeTransformUpscale,
		models.NodeTypeTransformRemoveBG,
	}, outputs...)...)

	t.Allow(models.NodeTypeProcessAIVideo, append([]models.NodeType{
		models.NodeTypeProcessAIAudio,
		models.NodeTypeTransformUpscale,
	}, outputs...)...)

	t.Allow(models.NodeTypeProcessAIAudio, append([]models.NodeType{
		models.NodeTypeProcessAIVideo,
	}, outputs...)...)

	t.Allow(models.NodeTypeProcessCode, append([]models.NodeType{
		models.NodeTypeProcessCode,
	}, outputs...)...)

	t.Allow(models.NodeTypeTransformUpscale, append([]models.NodeType{
		models.NodeTypeProcessAIImage,
		models.NodeTypeProcessAIVideo,
		models.NodeTypeTransformRemoveBG,
	}, outputs...)...)

	t.Allow(models.NodeTypeTransformRemoveBG, append([]models.NodeType{
		models.NodeTypeProcessAIImage,
		models.NodeTypeProcessAIVideo,
		models.NodeTypeTransformUpscale,
	}, outputs...)...)

	return t
}

// Allow registers producer as a valid source for each of the consumers.
func (t *CompatibilityTable) Allow(producer models.NodeType, consumers ...models.NodeType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, consumer := range consumers {
		t.allowed[typePair{producer: producer, consumer: consumer}] = struct{}{}
	}
}

// Compatible reports whether an edge from a producer node to a consumer node is allowed.
func (t *CompatibilityTable) Compatible(producer, consumer models.NodeType) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.allowed[typePair{producer: producer, consumer: consumer}]

	return ok
}
