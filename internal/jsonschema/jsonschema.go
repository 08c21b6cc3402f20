// Package jsonschema derives JSON Schema documents from Go struct types via
// reflection. Generated object schemas are closed records: additionalProperties
// is always false, so the model cannot invent parameters a tool never declared.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Schema represents the subset of JSON Schema used for tool parameter
// definitions: object/array/primitive types, required properties, enums,
// defaults, and descriptions.
type Schema struct {
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the object, each with its own schema
	Properties map[string]*Schema `json:"properties,omitempty"`
	// For array types, the schema of items in the array
	Items *Schema `json:"items,omitempty"`
	// AdditionalProperties is false for every generated object schema
	AdditionalProperties any `json:"additionalProperties,omitempty"`
	// Default value for the parameter
	Default any `json:"default,omitempty"`
	// Enum contains the list of allowed values for the parameter
	Enum []any `json:"enum,omitempty"`
}

// GenerateSchema derives a Schema from the struct type T. Nested structs are
// inlined. Self-referencing types are rejected because a closed record cannot
// express unbounded recursion.
func GenerateSchema[T any]() (*Schema, error) {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema root must be a struct, got %s", t.Kind())
	}
	return structSchema(t, map[reflect.Type]bool{})
}

// structSchema builds the closed-record schema for a struct type. The inProgress
// set tracks the types currently being expanded so recursion is detected.
func structSchema(t reflect.Type, inProgress map[reflect.Type]bool) (*Schema, error) {
	if inProgress[t] {
		return nil, fmt.Errorf("recursive type %s cannot be expressed as a closed record", t)
	}
	inProgress[t] = true
	defer delete(inProgress, t)

	schema := &Schema{
		Type:                 "object",
		Properties:           map[string]*Schema{},
		AdditionalProperties: false,
	}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		isOmitEmpty := false
		if jsonTag != "" {
			if commaIdx := strings.Index(jsonTag, ","); commaIdx != -1 {
				if jsonTag[:commaIdx] != "" {
					fieldName = jsonTag[:commaIdx]
				}
				isOmitEmpty = strings.Contains(jsonTag[commaIdx:], "omitempty")
			} else {
				fieldName = jsonTag
			}
		}

		fieldSchema, err := fieldTypeSchema(field.Type, inProgress)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldName, err)
		}

		isRequiredByTag, err := applySchemaTag(field.Type, field.Tag, fieldSchema)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldName, err)
		}

		schema.Properties[fieldName] = fieldSchema

		// A field is required when it is a non-pointer without omitempty, or
		// when the jsonschema tag marks it required explicitly.
		if (field.Type.Kind() != reflect.Ptr && !isOmitEmpty) || isRequiredByTag {
			required = append(required, fieldName)
		}
	}

	if len(required) > 0 {
		schema.Required = required
	}
	return schema, nil
}

// fieldTypeSchema builds the schema for a single field type.
func fieldTypeSchema(t reflect.Type, inProgress map[reflect.Type]bool) (*Schema, error) {
	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}, nil
	case reflect.Bool:
		return &Schema{Type: "boolean"}, nil
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}, nil
	case reflect.Slice, reflect.Array:
		items, err := fieldTypeSchema(t.Elem(), inProgress)
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "array", Items: items}, nil
	case reflect.Ptr:
		return fieldTypeSchema(t.Elem(), inProgress)
	case reflect.Struct:
		return structSchema(t, inProgress)
	case reflect.Map:
		// Open maps contradict the closed-record contract.
		return nil, fmt.Errorf("map fields are not supported in closed records")
	default:
		return nil, fmt.Errorf("unsupported field kind %s", t.Kind())
	}
}

// applySchemaTag parses the jsonschema struct tag and applies its settings.
// Supported forms:
//
//	jsonschema:"description=xxx"
//	jsonschema:"enum=a,enum=b" (values converted to the field's Go type)
//	jsonschema:"required"
//
// Descriptions cannot contain commas because the tag is comma-separated.
func applySchemaTag(fieldType reflect.Type, tag reflect.StructTag, schema *Schema) (bool, error) {
	schemaTag := tag.Get("jsonschema")
	if schemaTag == "" {
		return false, nil
	}

	isRequiredByTag := false
	for _, item := range strings.Split(schemaTag, ",") {
		kv := strings.SplitN(item, "=", 2)
		switch {
		case len(kv) == 2 && kv[0] == "description":
			schema.Description = kv[1]

		case len(kv) == 2 && kv[0] == "enum":
			value, err := convertEnumValue(fieldType, kv[1])
			if err != nil {
				return false, err
			}
			schema.Enum = append(schema.Enum, value)

		case len(kv) == 1 && kv[0] == "required":
			isRequiredByTag = true
		}
	}

	return isRequiredByTag, nil
}

// convertEnumValue converts the string tag value into the field's Go type so
// enums marshal with the correct JSON type.
func convertEnumValue(fieldType reflect.Type, value string) (any, error) {
	for fieldType.Kind() == reflect.Ptr {
		fieldType = fieldType.Elem()
	}

	switch fieldType.Kind() {
	case reflect.String:
		return value, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse enum value %q as int: %w", value, err)
		}
		return v, nil
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parse enum value %q as float: %w", value, err)
		}
		return v, nil
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("parse enum value %q as bool: %w", value, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("enum tag unsupported for field type %s", fieldType)
	}
}

// JsonString returns the JSON representation of the schema. When indent is
// true the output is pretty-printed with two-space indentation.
func (s *Schema) JsonString(indent ...bool) (string, error) {
	shouldIndent := len(indent) > 0 && indent[0]

	var jsonBytes []byte
	var err error
	if shouldIndent {
		jsonBytes, err = json.MarshalIndent(s, "", "  ")
	} else {
		jsonBytes, err = json.Marshal(s)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema to JSON: %w", err)
	}
	return string(jsonBytes), nil
}

// String returns the compact JSON representation of the schema, or an error
// message if marshalling fails.
func (s *Schema) String() string {
	jsonStr, err := s.JsonString()
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return jsonStr
}
