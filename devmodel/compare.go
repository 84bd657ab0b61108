package devmodel

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// CompareDescriptors structurally compares a descriptor (decoded JSON) with a
// reference descriptor. Key sets must match exactly, classId lists must be
// equal, and lists of named objects are compared by name rather than by
// position. The non-normative description field is only checked when it is
// itself an object. The first mismatch is returned as an error naming its
// path.
func CompareDescriptors(reference, actual any, context string) error {
	switch ref := reference.(type) {
	case map[string]any:
		actualMap, ok := actual.(map[string]any)
		if !ok {
			return fmt.Errorf("%sexpected object, got %T", context, actual)
		}
		if err := compareKeySets(ref, actualMap, context); err != nil {
			return err
		}
		for key, refValue := range ref {
			if key == "description" {
				if _, isMap := refValue.(map[string]any); !isMap {
					continue
				}
			}
			if key == "classId" {
				if refList, isList := refValue.([]any); isList {
					if !reflect.DeepEqual(refValue, actualMap[key]) {
						return fmt.Errorf("%sunexpected classId: expected %v, actual %v",
							context, refList, actualMap[key])
					}
					continue
				}
			}
			if err := CompareDescriptors(refValue, actualMap[key], context+key+"->"); err != nil {
				return err
			}
		}
		return nil

	case []any:
		actualList, ok := actual.([]any)
		if !ok {
			return fmt.Errorf("%sexpected sequence, got %T", context, actual)
		}
		if len(ref) > 0 {
			if _, itemsAreMaps := ref[0].(map[string]any); itemsAreMaps {
				refByName, err := keyByName(ref)
				if err != nil {
					return fmt.Errorf("%s%w", context, err)
				}
				actualByName, err := keyByName(actualList)
				if err != nil {
					return fmt.Errorf("%s%w", context, err)
				}
				return CompareDescriptors(refByName, actualByName, context)
			}
		}
		if !reflect.DeepEqual(reference, actual) {
			return fmt.Errorf("%sunexpected sequence: expected %v, actual %v", context, reference, actual)
		}
		return nil

	default:
		if !reflect.DeepEqual(reference, actual) {
			return fmt.Errorf("%sexpected value %v, actual value %v", context, reference, actual)
		}
		return nil
	}
}

func compareKeySets(reference, actual map[string]any, context string) error {
	var missing, extra []string
	for key := range reference {
		if _, ok := actual[key]; !ok {
			missing = append(missing, key)
		}
	}
	for key := range actual {
		if _, ok := reference[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	if len(missing) > 0 {
		return fmt.Errorf("%smissing keys: %s", context, strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		return fmt.Errorf("%sadditional keys: %s", context, strings.Join(extra, ", "))
	}
	return nil
}

func keyByName(items []any) (map[string]any, error) {
	out := make(map[string]any, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mixed sequence: expected object entries")
		}
		name, ok := entry["name"].(string)
		if !ok {
			return nil, fmt.Errorf("sequence entry has no name key")
		}
		out[name] = entry
	}
	return out, nil
}
