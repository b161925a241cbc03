// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// CONTENT PARTS
// =============================================================================

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ImageURL references an image attached to a user turn.
type ImageURL struct {
	URL string `json:"url" yaml:"url"`
}

// Part is one element of a multi-part user message.
type Part struct {
	Type     PartType  `json:"type" yaml:"type"`
	Text     string    `json:"text,omitempty" yaml:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart builds an image reference part.
func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

// =============================================================================
// CONTENT
// =============================================================================

// Content is either plain text or an ordered list of parts.
//
// On the wire plain text is a JSON string and multi-part content is a JSON
// array, matching what the completion service accepts.
type Content struct {
	text  string
	parts []Part
}

// Text returns plain text content.
func Text(s string) Content {
	return Content{text: s}
}

// Parts returns multi-part content. A single text part collapses to plain text.
func Parts(parts ...Part) Content {
	if len(parts) == 1 && parts[0].Type == PartText {
		return Text(parts[0].Text)
	}
	cp := make([]Part, len(parts))
	copy(cp, parts)
	return Content{parts: cp}
}

// IsMultipart reports whether c holds parts rather than plain text.
func (c Content) IsMultipart() bool {
	return c.parts != nil
}

// PartList returns the parts of multi-part content, or nil.
func (c Content) PartList() []Part {
	return c.parts
}

// IsEmpty reports whether c has no text and no parts.
func (c Content) IsEmpty() bool {
	if c.parts == nil {
		return c.text == ""
	}
	for _, p := range c.parts {
		if p.Text != "" || p.ImageURL != nil {
			return false
		}
	}
	return true
}

// String flattens the content to text. Image parts are omitted.
func (c Content) String() string {
	if c.parts == nil {
		return c.text
	}
	var sb strings.Builder
	for _, p := range c.parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Images returns the URLs of any image parts.
func (c Content) Images() []string {
	var urls []string
	for _, p := range c.parts {
		if p.Type == PartImageURL && p.ImageURL != nil {
			urls = append(urls, p.ImageURL.URL)
		}
	}
	return urls
}

// Clone returns a deep copy.
func (c Content) Clone() Content {
	if c.parts == nil {
		return c
	}
	cp := make([]Part, len(c.parts))
	for i, p := range c.parts {
		cp[i] = p
		if p.ImageURL != nil {
			img := *p.ImageURL
			cp[i].ImageURL = &img
		}
	}
	return Content{parts: cp}
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.parts != nil {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	case data[0] == '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		if parts == nil {
			parts = []Part{}
		}
		*c = Content{parts: parts}
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts, got %.20s", data)
	}
}

// MarshalYAML renders content as text or a list of parts.
func (c Content) MarshalYAML() (interface{}, error) {
	if c.parts != nil {
		return c.parts, nil
	}
	return c.text, nil
}
