package models

import (
	"path"
	"strings"
)

// ArtifactKind describes what an artifact refers to.
type ArtifactKind string

const (
	ArtifactKindText  ArtifactKind = "text"
	ArtifactKindImage ArtifactKind = "image"
	ArtifactKindVideo ArtifactKind = "video"
	ArtifactKindAudio ArtifactKind = "audio"
	ArtifactKindCode  ArtifactKind = "code"
	ArtifactKindFile  ArtifactKind = "file"
)

// Artifact is the opaque result produced by a node and consumed by its successors.
// Media is passed by reference (URI); text and code may be carried inline.
type Artifact struct {
	NodeID   string            `json:"node_id"`
	Kind     ArtifactKind      `json:"kind"`
	URI      string            `json:"uri,omitempty"`
	Text     string            `json:"text,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsMedia reports whether the artifact references image, video or audio content.
func (a Artifact) IsMedia() bool {
	return a.Kind == ArtifactKindImage || a.Kind == ArtifactKindVideo || a.Kind == ArtifactKindAudio
}

var extensionKinds = map[string]ArtifactKind{
	".png":  ArtifactKindImage,
	".jpg":  ArtifactKindImage,
	".jpeg": ArtifactKindImage,
	".webp": ArtifactKindImage,
	".gif":  ArtifactKindImage,
	".mp4":  ArtifactKindVideo,
	".mov":  ArtifactKindVideo,
	".webm": ArtifactKindVideo,
	".mp3":  ArtifactKindAudio,
	".wav":  ArtifactKindAudio,
	".ogg":  ArtifactKindAudio,
}

// KindFromURI infers the artifact kind from the extension of a URI path.
// Unknown extensions are reported as ArtifactKindFile.
func KindFromURI(uri string) ArtifactKind {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}

	if kind, ok := extensionKinds[strings.ToLower(path.Ext(uri))]; ok {
		return kind
	}

	return ArtifactKindFile
}
