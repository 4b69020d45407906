package input

import (
	"context"
	"net/url"

	"github.com/canvasflow/canvasflow/pkg/models"
	"github.com/canvasflow/canvasflow/pkg/protocol"
)

// TextNode emits its configured prompt as a text artifact.
type TextNode struct {
	prompt string
}

// NewTextNode creates a text input node.
func NewTextNode(data models.NodeData) (*TextNode, error) {
	if data.Prompt == "" {
		return nil, protocol.InvalidInput("text input requires a prompt")
	}

	return &TextNode{prompt: data.Prompt}, nil
}

// Execute returns the prompt. It performs no I/O.
func (n *TextNode) Execute(_ context.Context, node models.Node, _ map[string]models.Artifact) (models.Artifact, error) {
	return models.Artifact{
		NodeID:   node.ID,
		Kind:     models.ArtifactKindText,
		Text:     n.prompt,
		MimeType: "text/plain",
	}, nil
}

// MediaNode emits a reference to existing media.
type MediaNode struct {
	uri  string
	kind models.ArtifactKind
}

// NewMediaNode creates a media input node. Only absolute http, https and file URLs are accepted.
func NewMediaNode(data models.NodeData) (*MediaNode, error) {
	if data.URL == "" {
		return nil, protocol.InvalidInput("media input requires a url")
	}

	parsed, err := url.Parse(data.URL)
	if err != nil {
		return nil, protocol.InvalidInput("media url %q is invalid: %v", data.URL, err)
	}

	switch parsed.Scheme {
	case "http", "https", "file":
	default:
		return nil, protocol.InvalidInput("media url %q must use http, https or file", data.URL)
	}

	return &MediaNode{
		uri:  data.URL,
		kind: models.KindFromURI(parsed.Path),
	}, nil
}

// Execute returns the media reference. The media itself is not fetched.
func (n *MediaNode) Execute(_ context.Context, node models.Node, _ map[string]models.Artifact) (models.Artifact, error) {
	return models.Artifact{
		NodeID: node.ID,
		Kind:   n.kind,
		URI:    n.uri,
	}, nil
}
