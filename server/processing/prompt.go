package processing

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// EmptyMemory is rendered when there are no prior messages.
const EmptyMemory = "None"

// FormatMemory lists prior messages as "[i] message", 1-based, one per line.
func FormatMemory(memory []string) string {
	if len(memory) == 0 {
		return EmptyMemory
	}

	var b strings.Builder
	for i, msg := range memory {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(msg)
	}
	return b.String()
}

// promptData is the template input. User text only ever appears as a
// value, so template syntax inside a message is never evaluated.
type promptData struct {
	Message string
	Memory  string
	Role    string
}

// PromptBuilder renders the instruction template.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses tmpl. It fails on invalid template syntax.
func NewPromptBuilder(tmpl string) (*PromptBuilder, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: t}, nil
}

// Build renders the prompt for message with the given prior memory and role.
// An empty message is passed through.
func (b *PromptBuilder) Build(message string, memory []string, role string) (string, error) {
	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, promptData{
		Message: message,
		Memory:  FormatMemory(memory),
		Role:    role,
	})
	if err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	return buf.String(), nil
}
