package a2a

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

/*
Message represents one exchange unit appended to a task's log.  The ID is
assigned by the store at append time when the caller leaves it empty, and a
message never moves between tasks once appended.
*/
type Message struct {
	ID        string    `json:"id,omitempty"`
	TaskID    string    `json:"-"`
	Role      string    `json:"role"` // "user" or "agent"
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTextMessage(role string, text string) *Message {
	return &Message{
		Role:  role,
		Parts: []Part{NewTextPart(text)},
	}
}

func NewJSONMessage(role string, data map[string]any) *Message {
	return &Message{
		Role:  role,
		Parts: []Part{NewJSONPart(data)},
	}
}

func NewBinaryMessage(role string, data []byte) *Message {
	return &Message{
		Role:  role,
		Parts: []Part{NewBinaryPart(data)},
	}
}

/*
String concatenates the text parts of the message.
*/
func (msg *Message) String() string {
	var sb strings.Builder

	for _, part := range msg.Parts {
		sb.WriteString(part.Text())
	}

	return sb.String()
}
