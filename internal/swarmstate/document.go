package swarmstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrInvalidPath = errors.New("invalid path")

// Document converts a state into its generic JSON document form.
func Document(s *SwarmState) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal state document: %w", err)
	}
	return doc, nil
}

// Clone returns a deep copy of s.
func Clone(s *SwarmState) (*SwarmState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var out SwarmState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &out, nil
}

// ApplyPatch returns a new state with every dotted-path key of patch set to
// its value, plus the sorted list of changed paths. s is left untouched.
func ApplyPatch(s *SwarmState, patch map[string]any) (*SwarmState, []string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal state: %w", err)
	}
	paths := make([]string, 0, len(patch))
	for p := range patch {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if data, err = setPath(data, p, patch[p]); err != nil {
			return nil, nil, err
		}
	}
	var next SwarmState
	if err := json.Unmarshal(data, &next); err != nil {
		return nil, nil, fmt.Errorf("decode state: %w", err)
	}
	return &next, paths, nil
}

// setPath assigns value at path, creating missing or null intermediate
// objects. Traversing any other value is an error.
func setPath(data []byte, path string, value any) ([]byte, error) {
	segs := strings.Split(path, ".")
	escaped := make([]string, len(segs))
	for i, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		escaped[i] = escapeSegment(seg)
	}
	for i := 1; i < len(segs); i++ {
		prefix := strings.Join(escaped[:i], ".")
		r := gjson.GetBytes(data, prefix)
		switch {
		case !r.Exists() || r.Type == gjson.Null:
			var err error
			if data, err = sjson.SetRawBytes(data, prefix, []byte("{}")); err != nil {
				return nil, fmt.Errorf("set %q: %w", path, err)
			}
		case !r.IsObject():
			return nil, fmt.Errorf("%w: %q traverses a non-object at %q", ErrInvalidPath, path, segs[i-1])
		}
	}
	out, err := sjson.SetBytes(data, strings.Join(escaped, "."), value)
	if err != nil {
		return nil, fmt.Errorf("set %q: %w", path, err)
	}
	return out, nil
}

// Lookup walks doc along a dotted path. Array segments are either numeric
// indexes or the id of an element object.
func Lookup(doc any, path string) (any, bool) {
	if path == "" {
		return doc, true
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, false
	}
	cur := gjson.ParseBytes(data)
	for _, seg := range strings.Split(path, ".") {
		var ok bool
		switch {
		case cur.IsObject():
			cur = cur.Get(escapeSegment(seg))
			ok = cur.Exists()
		case cur.IsArray():
			cur, ok = lookupElement(cur, seg)
		}
		if !ok {
			return nil, false
		}
	}
	return cur.Value(), true
}

func lookupElement(items gjson.Result, seg string) (gjson.Result, bool) {
	if i, err := strconv.Atoi(seg); err == nil {
		if i < 0 {
			return gjson.Result{}, false
		}
		r := items.Get(seg)
		return r, r.Exists()
	}
	var found gjson.Result
	items.ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id")
		if item.IsObject() && id.Type == gjson.String && id.Str == seg {
			found = item
			return false
		}
		return true
	})
	return found, found.Exists()
}

// escapeSegment makes a single key safe for gjson and sjson paths, where
// dots, wildcards and modifiers carry meaning.
func escapeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		if !(r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
