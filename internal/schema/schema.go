//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package schema generates JSON schemas for tool argument types.
package schema

import (
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Generate builds a JSON schema for the given Go type. Struct fields use
// their json tag names; a "jsonschema" tag may carry "description=..." and
// "enum=a|b|c" directives. Fields without omitempty are required.
func Generate(t reflect.Type) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: "object"}
	}
	return generate(t, make(map[reflect.Type]bool))
}

func generate(t reflect.Type, visiting map[reflect.Type]bool) *tool.Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{Type: "array", Items: generate(t.Elem(), visiting)}
	case reflect.Map:
		return &tool.Schema{Type: "object"}
	case reflect.Struct:
		if visiting[t] {
			// Break recursion for self-referential types.
			return &tool.Schema{Type: "object"}
		}
		visiting[t] = true
		defer delete(visiting, t)
		return generateStruct(t, visiting)
	case reflect.Interface:
		return &tool.Schema{}
	default:
		return &tool.Schema{Type: "string"}
	}
}

func generateStruct(t reflect.Type, visiting map[reflect.Type]bool) *tool.Schema {
	s := &tool.Schema{
		Type:       "object",
		Properties: make(map[string]*tool.Schema),
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous {
			embedded := generate(field.Type, visiting)
			for name, prop := range embedded.Properties {
				s.Properties[name] = prop
			}
			s.Required = append(s.Required, embedded.Required...)
			continue
		}

		name, omitempty, skip := parseJSONTag(field)
		if skip {
			continue
		}
		prop := generate(field.Type, visiting)
		applySchemaTag(prop, field.Tag.Get("jsonschema"))
		s.Properties[name] = prop
		if !omitempty {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func parseJSONTag(field reflect.StructField) (name string, omitempty, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, part := range parts[1:] {
		if part == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func applySchemaTag(s *tool.Schema, tag string) {
	if tag == "" {
		return
	}
	for _, directive := range strings.Split(tag, ",") {
		key, value, found := strings.Cut(directive, "=")
		if !found {
			continue
		}
		switch key {
		case "description":
			s.Description = value
		case "enum":
			for _, v := range strings.Split(value, "|") {
				s.Enum = append(s.Enum, v)
			}
		}
	}
}
