package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Dictionary is a string keyed map that remembers insertion order. Nested
// objects decoded from JSON are Dictionary values as well, so provider
// payloads keep the field order the provider sent.
type Dictionary struct {
	keys   []string
	values map[string]any
}

func NewDictionary() Dictionary {
	return Dictionary{values: map[string]any{}}
}

// DictionaryFromMap builds a Dictionary from a plain map. Keys are sorted
// because Go maps carry no order.
func DictionaryFromMap(source map[string]any) Dictionary {
	out := NewDictionary()
	keys := make([]string, 0, len(source))
	for key := range source {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.Set(key, source[key])
	}
	return out
}

func ParseDictionary(raw []byte) (Dictionary, error) {
	var out Dictionary
	if err := json.Unmarshal(raw, &out); err != nil {
		return Dictionary{}, err
	}
	return out, nil
}

func (d *Dictionary) Set(key string, value any) {
	if d.values == nil {
		d.values = map[string]any{}
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = normalizeDictionaryValue(value)
}

func (d *Dictionary) Delete(key string) {
	if _, exists := d.values[key]; !exists {
		return
	}
	delete(d.values, key)
	for i, existing := range d.keys {
		if existing == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

func (d Dictionary) Get(key string) (any, bool) {
	value, ok := d.values[key]
	return value, ok
}

func (d Dictionary) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// String returns the value for key rendered as a string; missing keys and
// nil values yield "".
func (d Dictionary) String(key string) string {
	value, ok := d.values[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func (d Dictionary) Dictionary(key string) (Dictionary, bool) {
	value, ok := d.values[key]
	if !ok {
		return Dictionary{}, false
	}
	nested, ok := value.(Dictionary)
	return nested, ok
}

func (d Dictionary) Keys() []string {
	return append([]string(nil), d.keys...)
}

func (d Dictionary) Len() int {
	return len(d.keys)
}

func (d Dictionary) Clone() Dictionary {
	out := Dictionary{
		keys:   append([]string(nil), d.keys...),
		values: make(map[string]any, len(d.values)),
	}
	for key, value := range d.values {
		out.values[key] = cloneDictionaryValue(value)
	}
	return out
}

// ToMap converts the dictionary, recursively, into plain maps and slices.
func (d Dictionary) ToMap() map[string]any {
	out := make(map[string]any, len(d.keys))
	for _, key := range d.keys {
		out[key] = plainDictionaryValue(d.values[key])
	}
	return out
}

func (d Dictionary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		encodedValue, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, fmt.Errorf("core: encode dictionary key %q: %w", key, err)
		}
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Dictionary) UnmarshalJSON(raw []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	value, err := decodeOrderedValue(decoder)
	if err != nil {
		return err
	}
	dict, ok := value.(Dictionary)
	if !ok {
		return fmt.Errorf("core: dictionary json must be an object")
	}
	*d = dict
	return nil
}

func decodeOrderedValue(decoder *json.Decoder) (any, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := token.(json.Delim)
	if !ok {
		return token, nil
	}
	switch delim {
	case '{':
		out := NewDictionary()
		for decoder.More() {
			keyToken, err := decoder.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyToken.(string)
			if !ok {
				return nil, fmt.Errorf("core: dictionary key must be a string")
			}
			value, err := decodeOrderedValue(decoder)
			if err != nil {
				return nil, err
			}
			out.Set(key, value)
		}
		if _, err := decoder.Token(); err != nil {
			return nil, err
		}
		return out, nil
	case '[':
		out := make([]any, 0)
		for decoder.More() {
			value, err := decodeOrderedValue(decoder)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		if _, err := decoder.Token(); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("core: unexpected json delimiter %q", strings.TrimSpace(delim.String()))
	}
}

func normalizeDictionaryValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return DictionaryFromMap(typed)
	case map[string]string:
		converted := make(map[string]any, len(typed))
		for key, item := range typed {
			converted[key] = item
		}
		return DictionaryFromMap(converted)
	case *Dictionary:
		if typed == nil {
			return nil
		}
		return typed.Clone()
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = normalizeDictionaryValue(typed[i])
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = typed[i]
		}
		return out
	default:
		return value
	}
}

func cloneDictionaryValue(value any) any {
	switch typed := value.(type) {
	case Dictionary:
		return typed.Clone()
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = cloneDictionaryValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func plainDictionaryValue(value any) any {
	switch typed := value.(type) {
	case Dictionary:
		return typed.ToMap()
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = plainDictionaryValue(typed[i])
		}
		return out
	default:
		return value
	}
}
