package parser

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseFrontmatter extracts YAML frontmatter from markdown content into v.
// Returns the remaining content. Content without frontmatter is returned unchanged.
func ParseFrontmatter(content []byte, v any) ([]byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return content, nil
	}

	// Find end of frontmatter
	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:] // skip \n---

	if err := yaml.Unmarshal(fmData, v); err != nil {
		return nil, fmt.Errorf("parsing frontmatter: %w", err)
	}

	return bytes.TrimLeft(remaining, "\n"), nil
}

// RenderFrontmatter prefixes body with v encoded as YAML frontmatter
func RenderFrontmatter(v any, body []byte) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(data)
	buf.WriteString("---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}
