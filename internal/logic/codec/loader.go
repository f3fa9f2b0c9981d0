package codec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type fieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadSchemas 从 YAML 读取命名 schema 集合，例如：
//
//	greeting:
//	  - {name: counter, type: u32}
//	profile:
//	  - {name: name, type: "bytes[512]"}
//	  - {name: date, type: i32}
func LoadSchemas(data []byte) (map[string]*Schema, error) {
	var raw map[string][]fieldSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	result := make(map[string]*Schema, len(raw))
	for name, specs := range raw {
		fields := make([]Field, 0, len(specs))
		for _, spec := range specs {
			kind, n, err := ParseKind(spec.Type)
			if err != nil {
				return nil, fmt.Errorf("schema %s field %s: %w", name, spec.Name, err)
			}
			fields = append(fields, Field{Name: spec.Name, Kind: kind, Len: n})
		}
		s, err := NewSchema(name, fields...)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		result[name] = s
	}
	return result, nil
}
