// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/silohub/chat/internal/model"
)

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports conversations as a YAML document.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

type yamlDocument struct {
	Exported  *time.Time           `yaml:"exported,omitempty"`
	Generator string               `yaml:"generator,omitempty"`
	ID        string               `yaml:"id"`
	Title     string               `yaml:"title"`
	Date      *time.Time           `yaml:"date,omitempty"`
	Updated   *time.Time           `yaml:"updated,omitempty"`
	Messages  []*model.ChatMessage `yaml:"messages"`
}

// Export converts a conversation to YAML.
func (e *YAMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	doc := yamlDocument{
		ID:       conv.ID,
		Title:    conv.Title,
		Messages: visibleMessages(conv, e.options),
	}
	if e.options.IncludeMetadata {
		exported := e.options.now().UTC()
		doc.Exported = &exported
		doc.Generator = "silochat"
		if !conv.CreatedAt.IsZero() {
			doc.Date = &conv.CreatedAt
		}
		if !conv.UpdatedAt.IsZero() {
			doc.Updated = &conv.UpdatedAt
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
