package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSecret_String(t *testing.T) {
	s := Secret("password123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "password123", s.Reveal())

	assert.Equal(t, "", Secret("").String())
}

func TestSecret_GoString(t *testing.T) {
	assert.Equal(t, `"[REDACTED]"`, fmt.Sprintf("%#v", Secret("password123")))
	assert.Equal(t, `""`, fmt.Sprintf("%#v", Secret("")))
}

func TestSecret_Marshal(t *testing.T) {
	holder := struct {
		Key Secret `json:"key" yaml:"key"`
	}{Key: "password123"}

	data, err := json.Marshal(holder)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	out, err := yaml.Marshal(holder)
	require.NoError(t, err)
	assert.Contains(t, string(out), "[REDACTED]")
	assert.NotContains(t, string(out), "password123")
}
