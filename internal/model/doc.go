// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the stream decoder,
// the conversation controller and the history backends.
//
// # Key Types
//
//   - Conversation: ordered chat turns with an id, title and dates
//   - ChatMessage: single turn with role, content, date and optional context
//   - Content: plain text or a list of text/image parts
//   - ExecResult: one step of server-side execution attached to an answer
//   - Role: message role enumeration (user, assistant, tool, error)
//
// # Usage
//
// Create a new conversation:
//
//	conv := model.NewConversation("", "")
//	conv.AddMessage(model.NewUserMessage(model.Text("Hello!")))
//
// Build a multi-part user turn:
//
//	content := model.Parts(model.TextPart("what is this?"), model.ImagePart(url))
package model
