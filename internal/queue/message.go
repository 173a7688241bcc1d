package queue

import "encoding/json"

// MessageVersion is the current payload layout.
const MessageVersion = 1

// Message tells a worker which extraction job to process.
type Message struct {
	JobID      string `json:"jobId"`
	ProjectID  string `json:"projectId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
