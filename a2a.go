// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a provides the wire types of an A2A-style task server: tasks, messages and their
// parts, the JSON-RPC 2.0 envelope, and the typed errors returned by task operations.
package a2a

// Version is the current version of the task server.
const Version = "0.1.0"
