// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Role represents the author of a message.
type Role string

const (
	// RoleUser is the role of a message sent by the client.
	RoleUser Role = "user"
	// RoleAgent is the role of a message produced by the server.
	RoleAgent Role = "agent"
)

// PartType is the wire discriminator of a [Part].
type PartType string

const (
	// PartTypeText is the type of a [TextPart].
	PartTypeText PartType = "text"
	// PartTypeData is the type of a [DataPart].
	PartTypeData PartType = "data"
	// PartTypeFile is the type of a [FilePart].
	PartTypeFile PartType = "file"
)

// Part is a piece of message content. The set of implementations is closed: [TextPart],
// [DataPart] and [FilePart].
type Part interface {
	// PartType returns the wire discriminator of the part.
	PartType() PartType
	// Validate checks the part content.
	Validate() error

	isPart()
}

// TextPart is a plain text part.
type TextPart struct {
	Text string `json:"text"`
}

var _ Part = TextPart{}

// PartType implements [Part].
func (TextPart) PartType() PartType { return PartTypeText }

// Validate implements [Part].
func (TextPart) Validate() error { return nil }

func (TextPart) isPart() {}

// MarshalJSON implements [json.Marshaler].
func (p TextPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type PartType `json:"type"`
		Text string   `json:"text"`
	}{Type: PartTypeText, Text: p.Text})
}

// DataPart is a structured data part.
type DataPart struct {
	Data any `json:"data"`
}

var _ Part = DataPart{}

// PartType implements [Part].
func (DataPart) PartType() PartType { return PartTypeData }

// Validate implements [Part].
func (p DataPart) Validate() error {
	if p.Data == nil {
		return errors.New("data part has no data")
	}
	return nil
}

func (DataPart) isPart() {}

// MarshalJSON implements [json.Marshaler].
func (p DataPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type PartType `json:"type"`
		Data any      `json:"data"`
	}{Type: PartTypeData, Data: p.Data})
}

// FilePart is a file part. FileData carries the file descriptor as sent by the client.
type FilePart struct {
	FileData any `json:"fileData"`
}

var _ Part = FilePart{}

// PartType implements [Part].
func (FilePart) PartType() PartType { return PartTypeFile }

// Validate implements [Part].
func (p FilePart) Validate() error {
	if p.FileData == nil {
		return errors.New("file part has no file data")
	}
	return nil
}

func (FilePart) isPart() {}

// MarshalJSON implements [json.Marshaler].
func (p FilePart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     PartType `json:"type"`
		FileData any      `json:"fileData"`
	}{Type: PartTypeFile, FileData: p.FileData})
}

// UnmarshalPart decodes a JSON part into the matching [Part] implementation.
//
// The discriminator is read from "type", falling back to "kind". Unknown types are rejected.
func UnmarshalPart(data []byte) (Part, error) {
	var head struct {
		Type PartType `json:"type"`
		Kind PartType `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode part: %w", err)
	}
	typ := head.Type
	if typ == "" {
		typ = head.Kind
	}

	switch typ {
	case PartTypeText:
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode text part: %w", err)
		}
		return TextPart{Text: p.Text}, nil

	case PartTypeData:
		var p struct {
			Data any `json:"data"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode data part: %w", err)
		}
		return DataPart{Data: p.Data}, nil

	case PartTypeFile:
		var p struct {
			FileData any `json:"fileData"`
			File     any `json:"file"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode file part: %w", err)
		}
		if p.FileData == nil {
			p.FileData = p.File
		}
		return FilePart{FileData: p.FileData}, nil

	case "":
		return nil, errors.New("part type not found")

	default:
		return nil, fmt.Errorf("unknown part type: %q", typ)
	}
}

// Message is one turn of the conversation held by a [Task].
type Message struct {
	// Role is the author of the message.
	Role Role `json:"role"`
	// Parts is the ordered message content.
	Parts []Part `json:"parts"`
}

// NewUserTextMessage returns a user message with a single text part.
func NewUserTextMessage(text string) *Message {
	return &Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// NewAgentTextMessage returns an agent message with a single text part.
func NewAgentTextMessage(text string) *Message {
	return &Message{Role: RoleAgent, Parts: []Part{TextPart{Text: text}}}
}

// UnmarshalJSON implements [json.Unmarshaler].
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  Role             `json:"role"`
		Parts []jsontext.Value `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parts := make([]Part, 0, len(raw.Parts))
	for i, rp := range raw.Parts {
		p, err := UnmarshalPart(rp)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		parts = append(parts, p)
	}

	m.Role = raw.Role
	m.Parts = parts
	return nil
}

// Validate checks that m has a known role and at least one valid part.
func (m *Message) Validate() error {
	if m == nil {
		return errors.New("message is required")
	}
	switch m.Role {
	case RoleUser, RoleAgent:
	default:
		return fmt.Errorf("invalid message role: %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return errors.New("message must have at least one part")
	}
	for i, p := range m.Parts {
		if p == nil {
			return fmt.Errorf("part %d is nil", i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// Text returns the concatenated content of the text parts of m.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := &Message{
		Role:  m.Role,
		Parts: make([]Part, len(m.Parts)),
	}
	for i, p := range m.Parts {
		switch p := p.(type) {
		case DataPart:
			clone.Parts[i] = DataPart{Data: cloneValue(p.Data)}
		case FilePart:
			clone.Parts[i] = FilePart{FileData: cloneValue(p.FileData)}
		default:
			clone.Parts[i] = p
		}
	}
	return clone
}

// cloneValue deep copies the generic JSON shapes produced by decoding into any.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, e := range v {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
