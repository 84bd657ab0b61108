// Package schema turns MS-05 datatype descriptors into JSON Schema documents
// and validates payloads against them. Schemas are regenerated whenever the
// device model is rebuilt, since vendor-specific datatypes differ per device
// under test.
package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/nc"
)

var variantTypes = []any{"number", "string", "boolean", "object", "array", "null"}

// DescriptorToSchema converts one datatype descriptor into a draft-07 JSON
// Schema document. References to other datatypes use "<name>.json" refs,
// resolved by the Cache.
func DescriptorToSchema(descriptor nc.DatatypeDescriptor) map[string]any {
	doc := map[string]any{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       descriptor.Name,
		"description": descriptor.Description,
	}

	switch {
	case descriptor.ParentType != "":
		if descriptor.IsSequence {
			doc["type"] = "array"
			doc["items"] = map[string]any{"$ref": descriptor.ParentType + ".json"}
		} else {
			doc["allOf"] = []any{
				map[string]any{"$ref": descriptor.ParentType + ".json"},
			}
		}
	case descriptor.Kind == nc.KindPrimitive:
		doc["type"] = nc.PrimitiveJSONType(descriptor.Name)
	}

	if descriptor.Kind == nc.KindStruct && len(descriptor.Fields) > 0 {
		doc["type"] = "object"

		required := make([]any, 0, len(descriptor.Fields))
		properties := make(map[string]any, len(descriptor.Fields))
		for _, field := range descriptor.Fields {
			required = append(required, field.Name)
			properties[field.Name] = fieldSchema(field)
		}
		doc["required"] = required
		doc["properties"] = properties
	}

	if descriptor.Kind == nc.KindEnum && len(descriptor.Items) > 0 {
		values := make([]any, 0, len(descriptor.Items))
		for _, item := range descriptor.Items {
			values = append(values, item.Value)
		}
		doc["type"] = "integer"
		doc["enum"] = values
	}

	return doc
}

func fieldSchema(field nc.FieldDescriptor) map[string]any {
	var schema map[string]any

	switch {
	case nc.PrimitiveJSONType(field.TypeName) != "":
		jsonType := nc.PrimitiveJSONType(field.TypeName)
		if field.IsNullable {
			schema = map[string]any{"type": []any{jsonType, "null"}}
		} else {
			schema = map[string]any{"type": jsonType}
		}
	case field.TypeName != "":
		ref := map[string]any{"$ref": field.TypeName + ".json"}
		if field.IsNullable {
			schema = map[string]any{
				"anyOf": []any{ref, map[string]any{"type": "null"}},
			}
		} else {
			schema = ref
		}
	default:
		// Variant field: no declared type, any JSON value is legal.
		schema = map[string]any{"type": variantTypes}
	}

	if field.IsSequence {
		schema = map[string]any{"type": "array", "items": schema}
	}
	return schema
}

// Cache holds the generated schema documents for a set of datatypes and lazy
// access to their compiled forms.
type Cache struct {
	docs     map[string]map[string]any
	compiled map[string]*gojsonschema.Schema
}

// Generate builds and compiles schemas for every datatype in the table.
// Compilation of the whole table up front means a malformed vendor datatype
// is reported at device-model build time, not in the middle of a check.
func Generate(datatypes map[string]nc.DatatypeDescriptor) (*Cache, error) {
	cache := &Cache{
		docs:     make(map[string]map[string]any, len(datatypes)),
		compiled: make(map[string]*gojsonschema.Schema, len(datatypes)),
	}

	for name, descriptor := range datatypes {
		cache.docs[name] = DescriptorToSchema(descriptor)
	}

	for name, doc := range cache.docs {
		loader := gojsonschema.NewSchemaLoader()
		for refName, refDoc := range cache.docs {
			if refName == name {
				continue
			}
			if err := loader.AddSchema(refName+".json", gojsonschema.NewGoLoader(refDoc)); err != nil {
				return nil, fmt.Errorf("register schema %s: %w", refName, err)
			}
		}
		compiledSchema, err := loader.Compile(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		cache.compiled[name] = compiledSchema
	}

	return cache, nil
}

// Doc returns the generated schema document for a datatype, or nil.
func (c *Cache) Doc(name string) map[string]any {
	return c.docs[name]
}

// Names returns the number of cached schemas.
func (c *Cache) Len() int {
	return len(c.docs)
}

// Validate checks a payload against the named datatype's schema. The payload
// is any JSON-marshalable value.
func (c *Cache) Validate(payload any, datatypeName string) error {
	compiledSchema, ok := c.compiled[datatypeName]
	if !ok {
		return errors.Wrap(errors.ErrMissingSchema, "schema", "Validate",
			"lookup schema for "+datatypeName)
	}

	result, err := compiledSchema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return errors.WrapKind(errors.KindSchemaViolation, err, "schema", "Validate",
			"validate against "+datatypeName)
	}
	if !result.Valid() {
		first := ""
		if len(result.Errors()) > 0 {
			desc := result.Errors()[0]
			first = fmt.Sprintf("%s: %s", desc.Field(), desc.Description())
		}
		return errors.New(errors.KindSchemaViolation, "schema", "Validate",
			"payload failed %s schema: %s", datatypeName, first)
	}
	return nil
}
