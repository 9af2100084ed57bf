//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City  string   `json:"city" jsonschema:"description=City name"`
	Unit  string   `json:"unit,omitempty" jsonschema:"enum=celsius|fahrenheit"`
	Days  int      `json:"days,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Debug bool     `json:"-"`

	hidden string //nolint:unused
}

type nestedArgs struct {
	Inner weatherArgs `json:"inner"`
}

type embeddedArgs struct {
	weatherCommon
	Extra string `json:"extra"`
}

type weatherCommon struct {
	Region string `json:"region"`
}

func TestGenerate_Struct(t *testing.T) {
	s := Generate(reflect.TypeOf(weatherArgs{}))
	require.NotNil(t, s)
	assert.Equal(t, "object", s.Type)

	require.Contains(t, s.Properties, "city")
	assert.Equal(t, "string", s.Properties["city"].Type)
	assert.Equal(t, "City name", s.Properties["city"].Description)

	require.Contains(t, s.Properties, "unit")
	assert.Equal(t, []any{"celsius", "fahrenheit"}, s.Properties["unit"].Enum)

	assert.Equal(t, "integer", s.Properties["days"].Type)
	assert.Equal(t, "array", s.Properties["tags"].Type)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)

	// json:"-" and unexported fields are excluded.
	assert.NotContains(t, s.Properties, "Debug")
	assert.NotContains(t, s.Properties, "hidden")

	// Only fields without omitempty are required.
	assert.Equal(t, []string{"city"}, s.Required)
}

func TestGenerate_Scalars(t *testing.T) {
	assert.Equal(t, "string", Generate(reflect.TypeOf("")).Type)
	assert.Equal(t, "integer", Generate(reflect.TypeOf(0)).Type)
	assert.Equal(t, "number", Generate(reflect.TypeOf(0.0)).Type)
	assert.Equal(t, "boolean", Generate(reflect.TypeOf(false)).Type)
	assert.Equal(t, "object", Generate(reflect.TypeOf(map[string]any{})).Type)
}

func TestGenerate_Nested(t *testing.T) {
	s := Generate(reflect.TypeOf(nestedArgs{}))
	require.Contains(t, s.Properties, "inner")
	assert.Equal(t, "object", s.Properties["inner"].Type)
	assert.Contains(t, s.Properties["inner"].Properties, "city")
}

func TestGenerate_Embedded(t *testing.T) {
	s := Generate(reflect.TypeOf(embeddedArgs{}))
	assert.Contains(t, s.Properties, "region")
	assert.Contains(t, s.Properties, "extra")
	assert.ElementsMatch(t, []string{"region", "extra"}, s.Required)
}

func TestGenerate_PointerAndNil(t *testing.T) {
	s := Generate(reflect.TypeOf(&weatherArgs{}))
	assert.Equal(t, "object", s.Type)

	s = Generate(nil)
	require.NotNil(t, s)
	assert.Equal(t, "object", s.Type)
}
