package qdrant

import (
	"fmt"
	"sort"
	"strings"

	qc "github.com/qdrant/go-client/qdrant"
)

// translateFilter converts the Pinecone-style metadata filter used across the
// backend into Qdrant conditions. Supported: {"f": "v"}, {"f": {"$eq": v}},
// {"f": {"$in": [...]}}, {"f": {"$ne": v}} and {"$and": [...]}.
func translateFilter(filter map[string]any) (*qc.Filter, error) {
	out := &qc.Filter{}
	if len(filter) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filter[key]
		if key == "$and" {
			items, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("$and expects an array")
			}
			for _, item := range items {
				sub, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("$and items must be objects")
				}
				f, err := translateFilter(sub)
				if err != nil {
					return nil, err
				}
				out.Must = append(out.Must, f.Must...)
				out.MustNot = append(out.MustNot, f.MustNot...)
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("unsupported filter operator %s", key)
		}

		ops, isOps := value.(map[string]any)
		if !isOps {
			cond, err := matchCondition(key, value)
			if err != nil {
				return nil, err
			}
			out.Must = append(out.Must, cond)
			continue
		}
		for op, operand := range ops {
			switch op {
			case "$eq":
				cond, err := matchCondition(key, operand)
				if err != nil {
					return nil, err
				}
				out.Must = append(out.Must, cond)
			case "$ne":
				cond, err := matchCondition(key, operand)
				if err != nil {
					return nil, err
				}
				out.MustNot = append(out.MustNot, cond)
			case "$in":
				list, ok := operand.([]any)
				if !ok {
					if ss, ok2 := operand.([]string); ok2 {
						out.Must = append(out.Must, qc.NewMatchKeywords(key, ss...))
						continue
					}
					return nil, fmt.Errorf("$in on %s expects an array", key)
				}
				words := make([]string, 0, len(list))
				for _, v := range list {
					words = append(words, fmt.Sprint(v))
				}
				out.Must = append(out.Must, qc.NewMatchKeywords(key, words...))
			default:
				return nil, fmt.Errorf("unsupported filter operator %s on %s", op, key)
			}
		}
	}
	return out, nil
}

func matchCondition(key string, v any) (*qc.Condition, error) {
	switch t := v.(type) {
	case string:
		return qc.NewMatch(key, t), nil
	case bool:
		return qc.NewMatchBool(key, t), nil
	case int:
		return qc.NewMatchInt(key, int64(t)), nil
	case int64:
		return qc.NewMatchInt(key, t), nil
	default:
		return nil, fmt.Errorf("unsupported match value %T for %s", v, key)
	}
}
