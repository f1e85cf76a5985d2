package serde

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identity struct {
	Serial uint32 `json:"serial"`
	Name   string `json:"name"`
}

func TestMarshalReturnsIndependentSlices(t *testing.T) {
	first, err := MarshalJson(identity{Serial: 1, Name: "first"})
	require.NoError(t, err)

	second, err := MarshalJson(identity{Serial: 2, Name: "second"})
	require.NoError(t, err)

	assert.Contains(t, string(first), `"first"`)
	assert.Contains(t, string(second), `"second"`)
}

func TestUnmarshal(t *testing.T) {
	var id identity
	require.NoError(t, UnmarshalJson([]byte(`{"serial":3868484997,"name":"Forerunner 405"}`), &id))

	assert.Equal(t, uint32(3868484997), id.Serial)
	assert.Equal(t, "Forerunner 405", id.Name)
}

func TestUnmarshalRejectsUnknownField(t *testing.T) {
	var id identity
	assert.Error(t, UnmarshalJson([]byte(`{"serial":1,"colour":"red"}`), &id))
}
