package snapshot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Built-in type tags.
const (
	CastString   = "string"
	CastInt      = "int"
	CastFloat    = "float"
	CastBool     = "bool"
	CastDatetime = "datetime"
	CastDate     = "date"
	CastArray    = "array"
	CastObject   = "object"
	CastJSON     = "json"
	CastUUID     = "uuid"
)

// timeLayouts are tried in order when a datetime arrives as text, which is how JSON and SQLite deliver it.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.DateOnly,
}

// CastFunc coerces a value into the representation of one type tag.
// It receives plain JSON values as well as values delivered by SQL drivers.
type CastFunc func(value any) (any, error)

// CastRegistry maps type tags to cast functions. It is safe for concurrent use.
type CastRegistry struct {
	mu    sync.RWMutex
	casts map[string]CastFunc
}

var defaultCastRegistry = NewCastRegistry()

// NewCastRegistry creates a registry holding all built-in tags.
func NewCastRegistry() *CastRegistry {
	return &CastRegistry{
		casts: map[string]CastFunc{
			CastString:   castString,
			CastInt:      castInt,
			CastFloat:    castFloat,
			CastBool:     castBool,
			CastDatetime: castDatetime,
			CastDate:     castDate,
			CastArray:    castArray,
			CastObject:   castObject,
			CastJSON:     castJSON,
			CastUUID:     castUUID,
		},
	}
}

// DefaultCastRegistry returns the process-wide registry used when none is configured.
func DefaultCastRegistry() *CastRegistry {
	return defaultCastRegistry
}

// Register adds or replaces a cast for a tag.
func (r *CastRegistry) Register(tag string, fn CastFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.casts[tag] = fn
}

// Knows reports whether a cast exists for the tag.
func (r *CastRegistry) Knows(tag string) bool {
	if r == nil {
		return defaultCastRegistry.Knows(tag)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.casts[tag]

	return ok
}

// Cast coerces the value for the tag. An empty or unknown tag returns the value unchanged,
// nil values stay nil.
func (r *CastRegistry) Cast(tag string, value any) (any, error) {
	if r == nil {
		return defaultCastRegistry.Cast(tag, value)
	}

	if tag == "" || value == nil {
		return value, nil
	}

	r.mu.RLock()
	fn, ok := r.casts[tag]
	r.mu.RUnlock()

	if !ok {
		return value, nil
	}

	cast, err := fn(value)
	if err != nil {
		return nil, errors.Join(ErrCastFailed, fmt.Errorf("tag %q, value %v: %w", tag, value, err))
	}

	return cast, nil
}

// CastAll applies the declared casts to every matching attribute of the map in place.
func (r *CastRegistry) CastAll(declared map[string]string, attributes map[string]any) error {
	for name, tag := range declared {
		value, ok := attributes[name]
		if !ok {
			continue
		}

		cast, err := r.Cast(tag, value)
		if err != nil {
			return errors.Join(err, fmt.Errorf("attribute %q", name))
		}

		attributes[name] = cast
	}

	return nil
}

func castString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func castInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", v)
		}

		return int64(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return int64(1), nil
		}

		return int64(0), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return nil, fmt.Errorf("cannot cast %T to int", value)
	}
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not integral", f)
	}

	return int64(f), nil
}

func castFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	default:
		return nil, fmt.Errorf("cannot cast %T to float", value)
	}
}

func castBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	default:
		return nil, fmt.Errorf("cannot cast %T to bool", value)
	}
}

func castDatetime(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return nil, fmt.Errorf("cannot cast %T to datetime", value)
	}
}

func castDate(value any) (any, error) {
	t, err := castDatetime(value)
	if err != nil {
		return nil, err
	}

	return t.(time.Time).Truncate(24 * time.Hour), nil
}

func parseTime(text string) (time.Time, error) {
	text = strings.TrimSpace(text)

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format %q", text)
}

// ParseTime parses a timestamp in any of the text formats used by JSON and the supported SQL drivers.
func ParseTime(text string) (time.Time, error) {
	return parseTime(text)
}

func castArray(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	default:
		var out []any
		if err := castViaJSON(value, &out); err != nil {
			return nil, err
		}

		return out, nil
	}
}

func castObject(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	default:
		var out map[string]any
		if err := castViaJSON(value, &out); err != nil {
			return nil, err
		}

		return out, nil
	}
}

func castJSON(value any) (any, error) {
	switch v := value.(type) {
	case string:
		var out any
		if err := recordJSON.UnmarshalFromString(v, &out); err != nil {
			return v, nil //nolint:nilerr // plain strings are valid json values too
		}

		return normalizeJSONValue(out), nil
	case []byte:
		var out any
		if err := recordJSON.Unmarshal(v, &out); err != nil {
			return nil, err
		}

		return normalizeJSONValue(out), nil
	default:
		return v, nil
	}
}

// castViaJSON decodes text input as JSON and converts other Go values by a JSON round trip.
func castViaJSON(value any, target any) error {
	var raw []byte

	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		encoded, err := recordJSON.Marshal(v)
		if err != nil {
			return err
		}

		raw = encoded
	}

	if err := recordJSON.Unmarshal(raw, target); err != nil {
		return err
	}

	switch t := target.(type) {
	case *[]any:
		normalizeJSONValue(*t)
	case *map[string]any:
		normalizeJSONValue(*t)
	}

	return nil
}

func castUUID(value any) (any, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case string:
		return uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}

		return uuid.ParseBytes(v)
	default:
		return nil, fmt.Errorf("cannot cast %T to uuid", value)
	}
}
