package types

import (
	"encoding/json"
	"sort"
)

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
