package a2a

import "encoding/base64"

/*
Part is a discriminated union over Text, JSON and Binary content.  We keep it
simple by carrying a single free-form content field next to the type
discriminator, which avoids heavy custom JSON marshalling logic while the
constructors below keep producers honest about which kind they emit.

The optional metadata map is the escape hatch for opaque payloads that do
not fit the three content kinds.
*/
type Part struct {
	Type     PartType       `json:"type"`
	Content  any            `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType is the discriminator for a Part union.
type PartType string

const (
	PartTypeText   PartType = "text"
	PartTypeJSON   PartType = "json"
	PartTypeBinary PartType = "binary"
)

func NewTextPart(text string) Part {
	return Part{
		Type:    PartTypeText,
		Content: text,
	}
}

func NewJSONPart(data map[string]any) Part {
	return Part{
		Type:    PartTypeJSON,
		Content: data,
	}
}

func NewBinaryPart(data []byte) Part {
	return Part{
		Type:    PartTypeBinary,
		Content: base64.StdEncoding.EncodeToString(data),
	}
}

/*
Text returns the content as a string for text parts, and the empty string
for every other part kind.
*/
func (part Part) Text() string {
	if part.Type != PartTypeText {
		return ""
	}

	text, _ := part.Content.(string)
	return text
}
