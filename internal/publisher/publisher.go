// Package publisher defines outbound notifications about collection runs.
package publisher

import "context"

// Message is one notification. Attributes carry routing keys such as the
// run id and stage.
type Message struct {
	Data       []byte
	Attributes map[string]string
}

// Publisher delivers messages to a fixed topic.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (string, error)
	Close() error
}
