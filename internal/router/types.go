// Package router types - the cross-context message protocol.
//
// DESIGN: Every request from the content script, popup or options UI is a
// flat JSON object discriminated by "type". Only the fields of that type are
// read; Message.validate rejects a message missing its required fields.
// Every response is an Envelope, success or not.
package router

import (
	"encoding/json"
	"strings"

	"github.com/cosense-ai/cosense-gateway/internal/adapters"
	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// MessageType discriminates messages.
type MessageType string

const (
	TypeCreateChatCompletion MessageType = "CREATE_CHAT_COMPLETION"
	TypeProcessPrompt        MessageType = "PROCESS_PROMPT"
	TypeGetFrontendSettings  MessageType = "GET_FRONTEND_SETTINGS"

	// Options UI
	TypeGetSettings    MessageType = "GET_SETTINGS"
	TypeUpdateSettings MessageType = "UPDATE_SETTINGS"
	TypeGetPrompts     MessageType = "GET_PROMPTS"
	TypeSavePrompt     MessageType = "SAVE_PROMPT"
	TypeDeletePrompt   MessageType = "DELETE_PROMPT"
	TypeTestProvider   MessageType = "TEST_PROVIDER"

	// TypeSettingsChanged is pushed to long-lived ports; never received.
	TypeSettingsChanged MessageType = "SETTINGS_CHANGED"
)

// Privileged reports whether the type reads API keys or changes stored
// settings. Transports only accept these from the extension itself.
func (t MessageType) Privileged() bool {
	switch t {
	case TypeGetSettings, TypeUpdateSettings, TypeSavePrompt, TypeDeletePrompt, TypeTestProvider:
		return true
	}
	return false
}

// Message is one request.
type Message struct {
	// ID correlates request and response on long-lived ports. Optional.
	ID   string      `json:"id,omitempty"`
	Type MessageType `json:"type"`

	// CREATE_CHAT_COMPLETION, TEST_PROVIDER
	Provider    settings.Provider  `json:"provider,omitempty"`
	Model       string             `json:"model,omitempty"`
	APIKey      string             `json:"apiKey,omitempty"`
	Messages    []adapters.Message `json:"messages,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"maxTokens,omitempty"`

	// PROCESS_PROMPT, DELETE_PROMPT
	PromptID     string `json:"promptId,omitempty"`
	SelectedText string `json:"selectedText,omitempty"`

	// SAVE_PROMPT
	Prompt *settings.Prompt `json:"prompt,omitempty"`

	// UPDATE_SETTINGS: a partial record merged into the stored one.
	Settings json.RawMessage `json:"settings,omitempty"`
}

// validate checks the per-type required fields.
func (m *Message) validate() error {
	switch m.Type {
	case TypeCreateChatCompletion:
		if len(m.Messages) == 0 {
			return errs.Invalid("messages are required")
		}
		for i, msg := range m.Messages {
			switch msg.Role {
			case adapters.RoleSystem, adapters.RoleUser, adapters.RoleAssistant:
			default:
				return errs.Invalid("messages[%d]: invalid role %q", i, msg.Role)
			}
		}
	case TypeProcessPrompt:
		if strings.TrimSpace(m.PromptID) == "" {
			return errs.Invalid("promptId is required")
		}
		if strings.TrimSpace(m.SelectedText) == "" {
			return errs.Invalid("selected text is empty")
		}
	case TypeDeletePrompt:
		if strings.TrimSpace(m.PromptID) == "" {
			return errs.Invalid("promptId is required")
		}
	case TypeSavePrompt:
		if m.Prompt == nil {
			return errs.Invalid("prompt is required")
		}
	case TypeUpdateSettings:
		if len(m.Settings) == 0 || string(m.Settings) == "null" {
			return errs.Invalid("settings are required")
		}
	case TypeGetFrontendSettings, TypeGetSettings, TypeGetPrompts, TypeTestProvider:
	case "":
		return errs.Invalid("message type is required")
	default:
		return errs.Invalid("unknown message type: %s", m.Type)
	}
	return nil
}

// Envelope is the uniform response.
type Envelope struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type,omitempty"` // set on pushes only
	Success   bool        `json:"success"`
	Result    string      `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind errs.Kind   `json:"errorKind,omitempty"`

	// PROCESS_PROMPT
	PromptName     string                  `json:"promptName,omitempty"`
	InsertPosition settings.InsertPosition `json:"insertPosition,omitempty"`

	// Settings carries *settings.FrontendSettings or *settings.Settings.
	Settings any `json:"settings,omitempty"`
	// Prompts is set by GET_PROMPTS only and encodes [] when empty.
	Prompts *[]settings.Prompt `json:"prompts,omitempty"`
	Prompt  *settings.Prompt   `json:"prompt,omitempty"`
}

// Failure converts an error into an envelope.
func Failure(err error) Envelope {
	return Envelope{Success: false, Error: err.Error(), ErrorKind: errs.KindOf(err)}
}
