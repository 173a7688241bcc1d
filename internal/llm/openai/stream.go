package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"takeoff-backend/internal/llm"
)

const maxStreamLine = 1 << 20

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// readStream accumulates the assistant message from "data:" lines until [DONE].
// A stream that ends without [DONE] was cut off and is retryable.
func readStream(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)

	var b strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return b.String(), nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return "", streamError(chunk.Error.Type, chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			b.WriteString(choice.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", llm.Retryable("read stream", err)
	}
	return "", llm.Retryable("stream ended before completion", io.ErrUnexpectedEOF)
}

func streamError(kind, msg string) error {
	switch strings.ToLower(kind) {
	case "server_error", "overloaded_error", "rate_limit_error", "timeout":
		return llm.Retryable(msg, nil)
	case "invalid_api_key", "authentication_error", "permission_error":
		return &llm.Error{Class: llm.ClassFatal, Auth: true, Message: msg}
	default:
		return llm.Fatal(msg, nil)
	}
}
