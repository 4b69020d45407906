// Package models defines core node models for graph execution
package models

// NodeType identifies the behavior of a node. The set is closed: every type needs a
// registered handler and a compatibility entry before it can be executed.
type NodeType string

const (
	NodeTypeInputMedia        NodeType = "input_media"
	NodeTypeInputText         NodeType = "input_text"
	NodeTypeProcessAIImage    NodeType = "process_ai_image"
	NodeTypeProcessAIVideo    NodeType = "process_ai_video"
	NodeTypeProcessAIAudio    NodeType = "process_ai_audio"
	NodeTypeProcessCode       NodeType = "process_code"
	NodeTypeTransformUpscale  NodeType = "transform_upscale"
	NodeTypeTransformRemoveBG NodeType = "transform_remove_bg"
	NodeTypeOutputSave        NodeType = "output_save"
	NodeTypeOutputDownload    NodeType = "output_download"
)

// NodeTypes lists every built-in node type.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeTypeInputMedia,
		NodeTypeInputText,
		NodeTypeProcessAIImage,
		NodeTypeProcessAIVideo,
		NodeTypeProcessAIAudio,
		NodeTypeProcessCode,
		NodeTypeTransformUpscale,
		NodeTypeTransformRemoveBG,
		NodeTypeOutputSave,
		NodeTypeOutputDownload,
	}
}

// Helper methods for category checking.
func (t NodeType) IsInput() bool {
	return t == NodeTypeInputMedia || t == NodeTypeInputText
}

func (t NodeType) IsOutput() bool {
	return t == NodeTypeOutputSave || t == NodeTypeOutputDownload
}

func (t NodeType) IsProcessor() bool {
	switch t {
	case NodeTypeProcessAIImage, NodeTypeProcessAIVideo, NodeTypeProcessAIAudio, NodeTypeProcessCode:
		return true
	default:
		return false
	}
}

func (t NodeType) IsTransform() bool {
	return t == NodeTypeTransformUpscale || t == NodeTypeTransformRemoveBG
}

// Known reports whether t is one of the built-in node types.
func (t NodeType) Known() bool {
	return t.IsInput() || t.IsOutput() || t.IsProcessor() || t.IsTransform()
}

// Position is the node's place on the editing canvas. The engine ignores it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NodeData carries the type-specific configuration of a node.
type NodeData struct {
	Label       string `json:"label"                 yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Model       string `json:"model,omitempty"       yaml:"model,omitempty"`
	Prompt      string `json:"prompt,omitempty"      yaml:"prompt,omitempty"`
	URL         string `json:"url,omitempty"         yaml:"url,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty" yaml:"aspectRatio,omitempty"`
	Format      string `json:"format,omitempty"      yaml:"format,omitempty"`
}

// Node is a node instance in a workflow.
type Node struct {
	ID       string   `json:"id"       yaml:"id"       validate:"required"`
	Type     NodeType `json:"type"     yaml:"type"     validate:"required"`
	Position Position `json:"position" yaml:"position"`
	Data     NodeData `json:"data"     yaml:"data"`
}
