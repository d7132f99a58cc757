// Package export emits a machine-readable catalog of the registered rules:
// id, title, provenance metadata, and the JSON schema of each rule's config
// payload. The catalog is side-effect-free aside from writing to the
// caller-supplied sink.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rayzelltj/mer-review-agent/engine"
)

// CatalogEntry describes one registered rule.
type CatalogEntry struct {
	RuleID                 string         `json:"rule_id" yaml:"rule_id"`
	RuleTitle              string         `json:"rule_title" yaml:"rule_title"`
	BestPracticesReference string         `json:"best_practices_reference,omitempty" yaml:"best_practices_reference,omitempty"`
	Sources                []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
	ConfigModel            string         `json:"config_model,omitempty" yaml:"config_model,omitempty"`
	ConfigSchema           map[string]any `json:"config_schema,omitempty" yaml:"config_schema,omitempty"`
}

// BuildCatalog lists every registered rule in registration order.
func BuildCatalog(registry *engine.Registry) []CatalogEntry {
	entries := make([]CatalogEntry, 0, registry.Len())
	for _, rule := range registry.Rules() {
		info := rule.Info()
		entry := CatalogEntry{
			RuleID:                 info.ID,
			RuleTitle:              info.Title,
			BestPracticesReference: info.BestPracticesReference,
			Sources:                info.Sources,
		}
		if info.NewConfig != nil {
			cfg := info.NewConfig()
			entry.ConfigModel = configModelName(cfg)
			entry.ConfigSchema = SchemaFor(cfg)
		}
		entries = append(entries, entry)
	}
	return entries
}

// WriteJSON writes the catalog as indented JSON.
func WriteJSON(w io.Writer, entries []CatalogEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// WriteYAML writes the catalog as YAML.
func WriteYAML(w io.Writer, entries []CatalogEntry) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(entries)
}

func configModelName(cfg any) string {
	t := reflect.TypeOf(cfg)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// SchemaFor derives a JSON-schema-shaped description of a config payload
// from its struct tags: the json tag names the property, the schema tag
// carries type/description/default/required metadata. Embedded structs
// flatten into the parent object the way encoding/json flattens them.
func SchemaFor(cfg any) map[string]any {
	t := reflect.TypeOf(cfg)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	properties := map[string]any{}
	var required []string
	collectProperties(t, properties, &required)
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}

func collectProperties(t reflect.Type, properties map[string]any, required *[]string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		if field.Anonymous {
			embedded := field.Type
			for embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				collectProperties(embedded, properties, required)
				continue
			}
		}
		name := jsonName(field)
		if name == "" {
			continue
		}
		prop, isRequired := propertyFor(field)
		properties[name] = prop
		if isRequired {
			*required = append(*required, name)
		}
	}
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		name = field.Name
	}
	return name
}

func propertyFor(field reflect.StructField) (map[string]any, bool) {
	prop := map[string]any{}
	required := false
	for _, pair := range strings.Split(field.Tag.Get("schema"), ",") {
		key, value, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		switch key {
		case "type", "description", "category", "default":
			prop[key] = value
		case "required":
			required = value == "true"
		}
	}
	if _, ok := prop["type"]; !ok {
		prop["type"] = schemaType(field.Type)
	}
	nestedSchema(field.Type, prop)
	return prop, required
}

// nestedSchema expands object- and list-of-object-typed properties so the
// catalog documents nested payloads like per-account threshold overrides.
func nestedSchema(t reflect.Type, prop map[string]any) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		if isOpaqueStruct(t) {
			return
		}
		nested := map[string]any{}
		var nestedRequired []string
		collectProperties(t, nested, &nestedRequired)
		if len(nested) > 0 {
			prop["properties"] = nested
			if len(nestedRequired) > 0 {
				sort.Strings(nestedRequired)
				prop["required"] = nestedRequired
			}
		}
	case reflect.Slice, reflect.Array:
		elem := t.Elem()
		for elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() == reflect.Struct && !isOpaqueStruct(elem) {
			item := map[string]any{"type": "object"}
			nestedSchema(elem, item)
			prop["items"] = item
		}
	}
}

// isOpaqueStruct reports whether a struct should be treated as a scalar in
// the schema (decimals, times) rather than expanded field by field.
func isOpaqueStruct(t reflect.Type) bool {
	switch fmt.Sprintf("%s.%s", t.PkgPath(), t.Name()) {
	case "github.com/shopspring/decimal.Decimal",
		"github.com/shopspring/decimal.NullDecimal",
		"time.Time":
		return true
	}
	return false
}

func schemaType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return "string"
}
