// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	a2a "github.com/go-a2a/a2a-taskd"
)

// Card describes the agent served by this process.
type Card struct {
	// Human readable name of the agent.
	Name string `json:"name"`

	// A human-readable description of the agent.
	Description string `json:"description"`

	// A URL to the address the agent is hosted at.
	URL string `json:"url,omitempty"`

	// The version of the agent.
	Version string `json:"version"`

	// Optional capabilities supported by the agent.
	Capabilities Capabilities `json:"capabilities"`

	// Supported media types for input.
	DefaultInputModes []string `json:"defaultInputModes"`

	// Supported media types for output.
	DefaultOutputModes []string `json:"defaultOutputModes"`

	// Skills are units of capability that an agent can perform.
	Skills []Skill `json:"skills,omitempty"`
}

// Capabilities defines optional capabilities supported by an agent.
type Capabilities struct {
	// True if the agent supports tasks/sendSubscribe.
	Streaming bool `json:"streaming"`

	// True if the agent can notify updates to client.
	PushNotifications bool `json:"pushNotifications"`

	// True if the agent exposes the message history of a task.
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// Skill represents a unit of capability that an agent can perform.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// DefaultCard returns the card of the built-in task agent reachable at url.
func DefaultCard(url string) *Card {
	return &Card{
		Name:        "a2a-taskd",
		Description: "Task lifecycle server speaking the A2A task protocol",
		URL:         url,
		Version:     a2a.Version,
		Capabilities: Capabilities{
			Streaming:              true,
			StateTransitionHistory: true,
		},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills: []Skill{
			{
				ID:          "tasks",
				Name:        "Task processing",
				Description: "Runs submitted tasks synchronously or as a stream of updates",
				Tags:        []string{"tasks", "streaming"},
			},
		},
	}
}
