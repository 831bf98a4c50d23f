package store

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

type tree = map[string]any

func splitPath(path string) ([]string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// normalize round-trips v through JSON so stored values only contain maps,
// slices, strings, float64, bool and nil.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toTree(doc any) (tree, error) {
	v, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	t, ok := v.(tree)
	if !ok {
		return nil, fmt.Errorf("document must be a JSON object, got %T", v)
	}
	return t, nil
}

func decodeTree(raw []byte) (tree, error) {
	var t tree
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	if t == nil {
		t = tree{}
	}
	return t, nil
}

func getPath(t tree, parts []string) (any, bool) {
	var cur any = t
	for _, p := range parts {
		m, ok := cur.(tree)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(t tree, parts []string, v any) {
	m := t
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(tree)
		if !ok {
			next = tree{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func deletePath(t tree, parts []string) {
	m := t
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(tree)
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

func jsonEqual(a, b any) (bool, error) {
	ra, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ra, rb), nil
}

type write struct {
	parts    []string
	value    any
	ifAbsent bool
}

// applyUpdate checks every expectation and prepares every write before touching
// t, so a failed update leaves t unchanged.
func applyUpdate(t tree, u Update) error {
	for path, want := range u.Expect {
		parts, err := splitPath(path)
		if err != nil {
			return err
		}
		have, _ := getPath(t, parts)
		wantNorm, err := normalize(want)
		if err != nil {
			return fmt.Errorf("expect %s: %w", path, err)
		}
		eq, err := jsonEqual(have, wantNorm)
		if err != nil {
			return err
		}
		if !eq {
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, path)
		}
	}

	writes := make([]write, 0, len(u.Set)+len(u.SetIfAbsent))
	for path, v := range u.Set {
		w, err := prepare(path, v, false)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}
	for path, v := range u.SetIfAbsent {
		w, err := prepare(path, v, true)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}

	// Shorter paths first so a parent replacement never clobbers a child write
	// from the same batch.
	sortWrites(writes)
	for _, w := range writes {
		if w.ifAbsent {
			if _, ok := getPath(t, w.parts); ok {
				continue
			}
		}
		if w.value == nil {
			deletePath(t, w.parts)
			continue
		}
		setPath(t, w.parts, w.value)
	}
	return nil
}

func prepare(path string, v any, ifAbsent bool) (write, error) {
	parts, err := splitPath(path)
	if err != nil {
		return write{}, err
	}
	norm, err := normalize(v)
	if err != nil {
		return write{}, fmt.Errorf("set %s: %w", path, err)
	}
	return write{parts: parts, value: norm, ifAbsent: ifAbsent}, nil
}

func sortWrites(ws []write) {
	slices.SortFunc(ws, func(a, b write) int {
		if c := cmp.Compare(len(a.parts), len(b.parts)); c != 0 {
			return c
		}
		return cmp.Compare(strings.Join(a.parts, "/"), strings.Join(b.parts, "/"))
	})
}
