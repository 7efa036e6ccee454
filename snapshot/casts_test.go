package snapshot_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

func Test_CastRegistry_Cast(t *testing.T) {
	clock := time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC)
	id := uuid.MustParse("0195953b-6c5e-7d21-a3b0-2f6c1f3c9a10")

	testCases := []struct {
		name     string
		tag      string
		value    any
		expected any
	}{
		{name: "string from int", tag: snapshot.CastString, value: 42, expected: "42"},
		{name: "string from bytes", tag: snapshot.CastString, value: []byte("abc"), expected: "abc"},
		{name: "int from string", tag: snapshot.CastInt, value: " 42 ", expected: int64(42)},
		{name: "int from integral float", tag: snapshot.CastInt, value: float64(7), expected: int64(7)},
		{name: "int from int32", tag: snapshot.CastInt, value: int32(5), expected: int64(5)},
		{name: "float from string", tag: snapshot.CastFloat, value: "1.5", expected: 1.5},
		{name: "float from int64", tag: snapshot.CastFloat, value: int64(2), expected: float64(2)},
		{name: "bool from string", tag: snapshot.CastBool, value: "true", expected: true},
		{name: "bool from int64", tag: snapshot.CastBool, value: int64(0), expected: false},
		{name: "datetime from rfc3339", tag: snapshot.CastDatetime, value: "2025-03-14T09:26:53Z", expected: clock},
		{name: "datetime from sqlite text", tag: snapshot.CastDatetime, value: "2025-03-14 09:26:53", expected: clock},
		{name: "datetime from unix seconds", tag: snapshot.CastDatetime, value: clock.Unix(), expected: clock},
		{
			name:     "date truncates the time of day",
			tag:      snapshot.CastDate,
			value:    "2025-03-14T09:26:53Z",
			expected: time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC),
		},
		{name: "array from json text", tag: snapshot.CastArray, value: `["red","green"]`, expected: []any{"red", "green"}},
		{name: "array from slice", tag: snapshot.CastArray, value: []string{"a"}, expected: []any{"a"}},
		{name: "object from json text", tag: snapshot.CastObject, value: `{"a":1}`, expected: map[string]any{"a": int64(1)}},
		{name: "json from text", tag: snapshot.CastJSON, value: `{"n":[1,2]}`, expected: map[string]any{"n": []any{int64(1), int64(2)}}},
		{name: "json keeps plain strings", tag: snapshot.CastJSON, value: "plain", expected: "plain"},
		{name: "uuid from string", tag: snapshot.CastUUID, value: id.String(), expected: id},
		{name: "empty tag keeps the value", tag: "", value: "42", expected: "42"},
		{name: "unknown tag keeps the value", tag: "money", value: "42", expected: "42"},
		{name: "nil stays nil", tag: snapshot.CastInt, value: nil, expected: nil},
	}

	registry := snapshot.NewCastRegistry()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			cast, err := registry.Cast(tc.tag, tc.value)

			// assert
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cast)
		})
	}
}

func Test_CastRegistry_Cast_Fails(t *testing.T) {
	testCases := []struct {
		name  string
		tag   string
		value any
	}{
		{name: "int from text", tag: snapshot.CastInt, value: "forty-two"},
		{name: "int from fraction", tag: snapshot.CastInt, value: 3.5},
		{name: "bool from text", tag: snapshot.CastBool, value: "perhaps"},
		{name: "datetime from text", tag: snapshot.CastDatetime, value: "yesterday"},
		{name: "uuid from text", tag: snapshot.CastUUID, value: "not-a-uuid"},
		{name: "array from object text", tag: snapshot.CastArray, value: `{"a":1}`},
	}

	registry := snapshot.NewCastRegistry()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := registry.Cast(tc.tag, tc.value)

			// assert
			assert.ErrorIs(t, err, snapshot.ErrCastFailed)
		})
	}
}

func Test_CastRegistry_Register(t *testing.T) {
	// arrange
	registry := snapshot.NewCastRegistry()
	registry.Register("cents", func(value any) (any, error) {
		amount, ok := value.(int64)
		if !ok {
			return nil, errors.New("cents must be int64")
		}

		return float64(amount) / 100, nil
	})

	// act
	cast, err := registry.Cast("cents", int64(1250))

	// assert
	require.NoError(t, err)
	assert.True(t, registry.Knows("cents"))
	assert.False(t, snapshot.NewCastRegistry().Knows("cents"), "registries must not share custom casts")
	assert.Equal(t, 12.5, cast)
}

func Test_CastRegistry_CastAll(t *testing.T) {
	// arrange
	attributes := map[string]any{"id": "5", "tags": `["a"]`, "title": "kept"}
	declared := map[string]string{"id": snapshot.CastInt, "tags": snapshot.CastArray, "missing": snapshot.CastInt}

	// act
	err := snapshot.DefaultCastRegistry().CastAll(declared, attributes)

	// assert
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(5), "tags": []any{"a"}, "title": "kept"}, attributes)
}

func Test_ParseTime_AcceptsDriverFormats(t *testing.T) {
	expected := time.Date(2025, time.March, 14, 9, 26, 53, 589000000, time.UTC)

	for _, text := range []string{
		"2025-03-14T09:26:53.589Z",
		"2025-03-14 09:26:53.589+00:00",
		"2025-03-14 09:26:53.589",
		"2025-03-14T10:26:53.589+01:00",
	} {
		t.Run(text, func(t *testing.T) {
			parsed, err := snapshot.ParseTime(text)

			require.NoError(t, err)
			assert.True(t, expected.Equal(parsed), "expected %s, got %s", expected, parsed)
		})
	}
}
