package schema

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

// Sentinel errors returned by the YAML loader.
var (
	ErrInvalidYAML = errors.New("invalid yaml")
)

// yamlType is the on-disk shape of a record type definition.
type yamlType struct {
	Name   string      `yaml:"name"`
	Fields []yamlField `yaml:"fields"`
}

type yamlField struct {
	Label        string          `yaml:"label"`
	Type         string          `yaml:"type"`
	Bits         int             `yaml:"bits"`
	MaxLen       int             `yaml:"max_len"`
	Capacity     int             `yaml:"capacity"`
	Tag          int             `yaml:"tag"`
	Read         string          `yaml:"read"`
	Write        string          `yaml:"write"`
	Persisted    *bool           `yaml:"persisted"`
	AlwaysNotify bool            `yaml:"always_notify"`
	Min          *float64        `yaml:"min"`
	Max          *float64        `yaml:"max"`
	Values       []yamlEnumEntry `yaml:"values"`
	Object       *yamlType       `yaml:"object"`
}

type yamlEnumEntry struct {
	Name        string `yaml:"name"`
	Value       int64  `yaml:"value"`
	Description string `yaml:"description"`
}

// Load parses a YAML record type definition:
//
//	name: Reading
//	fields:
//	  - label: sensor
//	    type: string
//	    max_len: 32
//	  - label: level
//	    type: enum
//	    values:
//	      - {name: low, value: 0}
//	      - {name: high, value: 1}
//	  - label: samples
//	    type: signed
//	    bits: 16
//	    capacity: 64
//
// Nested object fields inline their own definition under "object". The
// identifier field is implicit.
func Load(doc []byte) (*RecordType, error) {
	var yt yamlType
	if err := yaml.Unmarshal(doc, &yt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}
	return buildFromYAML(&yt)
}

func buildFromYAML(yt *yamlType) (*RecordType, error) {
	fields := []Field{{
		Label:     IDFieldLabel,
		Type:      TypeUnsigned,
		Bits:      64,
		Persisted: true,
	}}

	for i := range yt.Fields {
		f, err := fieldFromYAML(&yt.Fields[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", yt.Name, err)
		}
		fields = append(fields, f)
	}
	return NewRecordType(yt.Name, fields)
}

func fieldFromYAML(yf *yamlField) (Field, error) {
	f := Field{
		Label:        yf.Label,
		Bits:         yf.Bits,
		MaxLen:       yf.MaxLen,
		Capacity:     yf.Capacity,
		Tag:          yf.Tag,
		AlwaysNotify: yf.AlwaysNotify,
		Min:          yf.Min,
		Max:          yf.Max,
		Persisted:    true,
	}
	if yf.Persisted != nil {
		f.Persisted = *yf.Persisted
	}

	var err error
	if f.ReadLevel, err = ParseLevel(yf.Read); err != nil {
		return f, err
	}
	if f.WriteLevel, err = ParseLevel(yf.Write); err != nil {
		return f, err
	}

	switch yf.Type {
	case "bool":
		f.Type = TypeBool
	case "signed", "int":
		f.Type = TypeSigned
	case "unsigned", "uint":
		f.Type = TypeUnsigned
	case "float":
		f.Type = TypeFloat
	case "enum":
		f.Type = TypeEnum
	case "bitmask":
		f.Type = TypeBitmask
	case "string":
		f.Type = TypeString
	case "bytes":
		f.Type = TypeBytes
	case "object":
		f.Type = TypeObject
	default:
		return f, fmt.Errorf("%w: field %s type %q", ErrInvalidField, yf.Label, yf.Type)
	}

	if f.Type == TypeEnum || f.Type == TypeBitmask {
		entries := make([]EnumEntry, len(yf.Values))
		for i, v := range yf.Values {
			entries[i] = EnumEntry{Name: v.Name, Value: v.Value, Description: v.Description}
		}
		em, err := NewEnumMap(yf.Label, entries)
		if err != nil {
			return f, err
		}
		f.Enum = em
	}

	if f.Type == TypeObject {
		if yf.Object == nil {
			return f, fmt.Errorf("%w: object field %s has no definition", ErrInvalidField, yf.Label)
		}
		sub, err := buildFromYAML(yf.Object)
		if err != nil {
			return f, err
		}
		f.Sub = sub
	}

	return f, nil
}
