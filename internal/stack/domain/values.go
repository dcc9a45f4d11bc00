package domain

import (
	"fmt"

	"github.com/mitchellh/copystructure"
)

// CopyValues returns a deep copy of a values tree. A nil tree copies to an
// empty, non-nil map.
func CopyValues(v map[string]any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	c, err := copystructure.Copy(v)
	if err != nil {
		return nil, fmt.Errorf("copying values: %w", err)
	}
	return c.(map[string]any), nil
}

// MergeValues deep-merges src on top of dst and returns the result without
// touching either input. Nested maps are merged key by key; any other value
// in src (scalars, lists, nil) replaces the one in dst.
func MergeValues(dst, src map[string]any) (map[string]any, error) {
	out, err := CopyValues(dst)
	if err != nil {
		return nil, err
	}
	overlay, err := CopyValues(src)
	if err != nil {
		return nil, err
	}
	mergeInto(out, overlay)
	return out, nil
}

func mergeInto(dst, src map[string]any) {
	for k, sv := range src {
		srcMap, srcIsMap := sv.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		dst[k] = sv
	}
}
