// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs prompt exchanges and reconciles their results with the
// shared conversation state.
//
// Each Controller.Send call is one exchange. It appends the user message,
// sends the conversation through the Transport, decodes the stream with
// package stream, folds fragments with an Aggregator, merges the answer into
// the state store and hands the conversation to history.Sync.
//
// # Exchange States
//
//	Idle -> Sending -> Streaming -> Finalizing -> Idle
//	Sending/Streaming -> Errored -> Idle
//	Sending/Streaming -> Aborted -> Idle
//
// Every Send ends in exactly one Outcome: the answer is appended, one error
// message is appended, the exchange is silently aborted, or it is skipped
// because the target conversation is not held.
//
// # Cancellation
//
// StopGenerating cancels every live exchange and clears the loading flags
// immediately. A cancelled exchange keeps the user message and records
// nothing else. Config.ExchangeTimeout is treated as a failure, not a
// cancellation.
//
// # Usage
//
//	ctrl := chat.NewController(client, store, sync, chat.WithLogger(log))
//	res, err := ctrl.Send(ctx, model.Text("Hello"), "")
//	if err == nil && res.Outcome == chat.OutcomeSuccess {
//	    fmt.Println(res.Assistant.Text())
//	}
package chat
