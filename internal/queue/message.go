package queue

import "encoding/json"

// Phase event names routed by the worker.
const (
	EventCollectData    = "job.collect_data"
	EventProcessUploads = "job.process_uploads"
	EventConsolidate    = "job.consolidate"
	EventGenerate       = "job.generate"
)

// Message is the payload sent to downstream queue consumers.
type Message struct {
	Event      string `json:"event"`
	JobID      string `json:"jobId"`
	Output     string `json:"output,omitempty"` // teaser | im | pitch_deck, for job.generate
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
