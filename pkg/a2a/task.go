package a2a

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

/*
Task is a unit of work with an id and lifecycle status, owning an ordered
message log.  Instances handed out by a store are snapshots: mutation goes
through the store so per-task serialization is preserved.
*/
type Task struct {
	ID        string    `json:"id"`
	Status    TaskState `json:"status"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Result    *Message  `json:"result,omitempty"`
}

func NewTaskFromRequest(body []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (task *Task) LastMessage() *Message {
	if len(task.Messages) == 0 {
		return nil
	}

	return &task.Messages[len(task.Messages)-1]
}

/*
Clone returns a deep copy of the task so readers never observe a partial
update while a writer holds the task entry.
*/
func (task *Task) Clone() *Task {
	clone := *task
	clone.Messages = make([]Message, len(task.Messages))
	copy(clone.Messages, task.Messages)

	for i := range clone.Messages {
		parts := make([]Part, len(clone.Messages[i].Parts))
		copy(parts, clone.Messages[i].Parts)
		clone.Messages[i].Parts = parts
	}

	if task.Result != nil {
		result := *task.Result
		clone.Result = &result
	}

	return &clone
}

func (task *Task) Bytes() []byte {
	b, err := json.Marshal(task)
	if err != nil {
		return []byte{}
	}
	return b
}

func (task *Task) Reader() io.Reader {
	return bytes.NewReader(task.Bytes())
}

func (task *Task) String() string {
	var sb strings.Builder

	// Styles
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	// Indentation and box-drawing chars
	indent := "   "
	bullet := "│ "

	// Task Details Header
	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")

	// Status Section
	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status)) + "\n")
	sb.WriteString(bullet + labelStyle.Render("Created: ") + valueStyle.Render(task.CreatedAt.Format(time.RFC3339)) + "\n")
	sb.WriteString(bullet + labelStyle.Render("Updated: ") + valueStyle.Render(task.UpdatedAt.Format(time.RFC3339)) + "\n")

	// Messages Section
	if len(task.Messages) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Messages") + "\n")
		for i, message := range task.Messages {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(message.Role) + "\n")
			for _, part := range message.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(fmt.Sprintf("%v", part.Content)) + "\n")
			}
		}
	}

	// Result Section
	if task.Result != nil {
		sb.WriteString("\n" + sectionStyle.Render("Result") + "\n")
		sb.WriteString(bullet + valueStyle.Render(task.Result.String()) + "\n")
	}

	return sb.String()
}
