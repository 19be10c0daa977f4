package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/zoobzio/sentinel"
)

func init() {
	// Register our compound tags with sentinel
	sentinel.Tag("strata")
	sentinel.Tag("strata.read")
	sentinel.Tag("strata.write")
	sentinel.Tag("strata.tag")
	sentinel.Tag("strata.cap")
	sentinel.Tag("strata.len")
	sentinel.Tag("strata.bits")
	sentinel.Tag("strata.persist")
	sentinel.Tag("strata.notify")
	sentinel.Tag("strata.bounds")
}

// Of derives a RecordType from the exported fields of struct type T.
//
// Field behavior is declared via struct tags:
//
//	type Device struct {
//	    Name     string  `strata:"name" strata.len:"32"`
//	    Secret   string  `strata:"secret" strata.read:"admin" strata.write:"root"`
//	    Signal   int16   `strata:"signal" strata.bounds:"-120..0"`
//	    Ports    []uint8 `strata:"ports" strata.cap:"8"`
//	    Location GeoPos  `strata:"location" strata.persist:"true"`
//	}
//
// A uint64 field named ID maps onto the reserved identifier field;
// otherwise the identifier is implicit. Nested structs derive their own
// record types recursively. Derived types are cached per Go type.
func Of[T any]() (*RecordType, error) {
	typ := reflect.TypeFor[T]()
	return deriveType(typ, sentinel.Scan[T]())
}

func deriveType(typ reflect.Type, spec sentinel.Metadata) (*RecordType, error) {
	// Fast path: read-lock cache check
	derivedMu.RLock()
	if cached, ok := derived[typ]; ok {
		derivedMu.RUnlock()
		return cached, nil
	}
	derivedMu.RUnlock()

	rt, err := buildDerived(typ, spec)
	if err != nil {
		return nil, err
	}

	derivedMu.Lock()
	defer derivedMu.Unlock()
	if cached, ok := derived[typ]; ok {
		return cached, nil
	}
	derived[typ] = rt
	return rt, nil
}

func buildDerived(typ reflect.Type, spec sentinel.Metadata) (*RecordType, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidType, typ)
	}

	fields := []Field{{
		Label:     IDFieldLabel,
		Type:      TypeUnsigned,
		Bits:      64,
		Persisted: true,
	}}

	for _, fm := range spec.Fields {
		ft := fm.ReflectType

		if isIDField(fm.Name, ft) {
			continue // implicit field 0
		}

		f := Field{
			Label:     strings.ToLower(fm.Name),
			Persisted: true,
		}
		if label, ok := fm.Tags["strata"]; ok && label != "" {
			if label == "-" {
				continue
			}
			f.Label = label
		}

		if err := applyKind(&f, ft); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", spec.TypeName, fm.Name, err)
		}
		if err := applyTags(&f, fm.Tags); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", spec.TypeName, fm.Name, err)
		}
		fields = append(fields, f)
	}

	return NewRecordType(spec.TypeName, fields)
}

func isIDField(name string, t reflect.Type) bool {
	return (name == "ID" || name == "Id") && t.Kind() == reflect.Uint64
}

// applyKind maps a Go type onto a semantic field type.
func applyKind(f *Field, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			f.Type = TypeBytes
			return nil
		}
		if f.Capacity == 0 {
			f.Capacity = defaultArrayCapacity
		}
		return applyKind(f, t.Elem())
	case reflect.Ptr:
		if t.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("%w: pointer to %s", ErrInvalidField, t.Elem().Kind())
		}
		return applyKind(f, t.Elem())
	case reflect.Struct:
		sub, err := deriveType(t, scanStruct(t))
		if err != nil {
			return err
		}
		f.Type = TypeObject
		f.Sub = sub
		return nil
	case reflect.Bool:
		f.Type = TypeBool
		f.Bits = 8
	case reflect.Int8:
		f.Type, f.Bits = TypeSigned, 8
	case reflect.Int16:
		f.Type, f.Bits = TypeSigned, 16
	case reflect.Int32:
		f.Type, f.Bits = TypeSigned, 32
	case reflect.Int, reflect.Int64:
		f.Type, f.Bits = TypeSigned, 64
	case reflect.Uint8:
		f.Type, f.Bits = TypeUnsigned, 8
	case reflect.Uint16:
		f.Type, f.Bits = TypeUnsigned, 16
	case reflect.Uint32:
		f.Type, f.Bits = TypeUnsigned, 32
	case reflect.Uint, reflect.Uint64:
		f.Type, f.Bits = TypeUnsigned, 64
	case reflect.Float32:
		f.Type, f.Bits = TypeFloat, 32
	case reflect.Float64:
		f.Type, f.Bits = TypeFloat, 64
	case reflect.String:
		f.Type = TypeString
	default:
		return fmt.Errorf("%w: unsupported kind %s", ErrInvalidField, t.Kind())
	}
	return nil
}

const defaultArrayCapacity = 16

func applyTags(f *Field, tags map[string]string) error {
	if v, ok := tags["strata.read"]; ok {
		level, err := ParseLevel(v)
		if err != nil {
			return err
		}
		f.ReadLevel = level
	}
	if v, ok := tags["strata.write"]; ok {
		level, err := ParseLevel(v)
		if err != nil {
			return err
		}
		f.WriteLevel = level
	}
	if v, ok := tags["strata.tag"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: tag %q", ErrInvalidField, v)
		}
		f.Tag = n
	}
	if v, ok := tags["strata.cap"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: capacity %q", ErrInvalidField, v)
		}
		f.Capacity = n
	}
	if v, ok := tags["strata.len"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: length %q", ErrInvalidField, v)
		}
		f.MaxLen = n
	}
	if v, ok := tags["strata.bits"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: bits %q", ErrInvalidField, v)
		}
		f.Bits = n
	}
	if v, ok := tags["strata.persist"]; ok {
		f.Persisted = v == "true"
	}
	if v, ok := tags["strata.notify"]; ok && v == "always" {
		f.AlwaysNotify = true
	}
	if v, ok := tags["strata.bounds"]; ok {
		lo, hi, found := strings.Cut(v, "..")
		if !found {
			return fmt.Errorf("%w: bounds %q", ErrInvalidField, v)
		}
		min, err1 := strconv.ParseFloat(lo, 64)
		max, err2 := strconv.ParseFloat(hi, 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%w: bounds %q", ErrInvalidField, v)
		}
		f.Min, f.Max = &min, &max
	}
	return nil
}

// scanStruct builds sentinel metadata for a nested struct type encountered
// during derivation.
func scanStruct(rt reflect.Type) sentinel.Metadata {
	if spec, ok := sentinel.Lookup(rt.String()); ok {
		return spec
	}

	spec := sentinel.Metadata{
		TypeName:    rt.Name(),
		PackageName: rt.PkgPath(),
		Fields:      make([]sentinel.FieldMetadata, 0, rt.NumField()),
	}

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		spec.Fields = append(spec.Fields, sentinel.FieldMetadata{
			Name:        sf.Name,
			Type:        sf.Type.String(),
			ReflectType: sf.Type,
			Index:       sf.Index,
			Tags:        parseStrataTags(sf.Tag),
		})
	}
	return spec
}

func parseStrataTags(tag reflect.StructTag) map[string]string {
	tags := make(map[string]string)
	for _, name := range []string{
		"strata",
		"strata.read",
		"strata.write",
		"strata.tag",
		"strata.cap",
		"strata.len",
		"strata.bits",
		"strata.persist",
		"strata.notify",
		"strata.bounds",
	} {
		if val, ok := tag.Lookup(name); ok {
			tags[name] = val
		}
	}
	return tags
}
