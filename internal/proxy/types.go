package proxy

import "encoding/json"

// Message is one chat turn in the OpenAI-compatible wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the chat completion request body.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat asks the provider for structured output.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// ChatResponse is the non-streaming completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"`
	} `json:"error,omitempty"`
}

type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// CompletionRequest is the single-shot form used by generators: one system
// prompt, one user message and an optional JSON schema for the reply.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float64
	SchemaName  string
	Schema      json.RawMessage
	// Strict requires every property to be listed as required.
	Strict      bool
}

func (r CompletionRequest) chatRequest() ChatRequest {
	req := ChatRequest{
		Model:       r.Model,
		Temperature: r.Temperature,
	}
	if r.System != "" {
		req.Messages = append(req.Messages, Message{Role: "system", Content: r.System})
	}
	req.Messages = append(req.Messages, Message{Role: "user", Content: r.User})
	if len(r.Schema) > 0 {
		name := r.SchemaName
		if name == "" {
			name = "response"
		}
		req.ResponseFormat = &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &JSONSchema{Name: name, Strict: r.Strict, Schema: r.Schema},
		}
	}
	return req
}
