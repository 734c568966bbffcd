package layout

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"firestige.xyz/groundview/internal/core"
)

// yamlDefinition is the self-describing alternative to the row format.
//
//	endian: L
//	fields:
//	  - description: Command Counter
//	    offset: 12
//	    size: 1
//	    format: B
//	    display: Dec
type yamlDefinition struct {
	Endian string      `yaml:"endian"`
	Fields []yamlField `yaml:"fields"`
}

type yamlField struct {
	Description string   `yaml:"description"`
	Offset      *int     `yaml:"offset"`
	Size        *int     `yaml:"size"`
	Format      string   `yaml:"format"`
	Display     string   `yaml:"display"`
	Enum        []string `yaml:"enum,omitempty"`

	line int
}

func (f *yamlField) UnmarshalYAML(node *yaml.Node) error {
	type plain yamlField
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = yamlField(p)
	f.line = node.Line
	return nil
}

// ParseYAML builds a layout from a YAML definition. An endian key in the
// document overrides WithEndianness.
func ParseYAML(r io.Reader, opts ...Option) (*PacketLayout, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var def yamlDefinition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return nil, &core.DefinitionError{Source: o.source, Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}

	if def.Endian != "" {
		e, err := ParseEndianness(def.Endian)
		if err != nil {
			return nil, &core.DefinitionError{Source: o.source, Reason: err.Error()}
		}
		opts = append(opts, WithEndianness(e))
	}

	rows := make([]Row, 0, len(def.Fields))
	for _, f := range def.Fields {
		if f.Offset == nil || f.Size == nil || f.Format == "" || f.Display == "" {
			return nil, &core.DefinitionError{
				Source: o.source,
				Line:   f.line,
				Reason: "field requires offset, size, format and display",
			}
		}
		rows = append(rows, Row{
			Line:        f.line,
			Description: f.Description,
			Offset:      *f.Offset,
			Size:        *f.Size,
			Format:      f.Format,
			Display:     f.Display,
			Enum:        f.Enum,
		})
	}

	return Build(rows, opts...)
}
