package params

import "github.com/arthur-debert/querysync/types"

// Merge deep-merges layers from left to right and returns a new map.
// Later layers win on scalar conflicts, maps merge key-wise and arrays replace
// wholly. Nil values in a later layer do not erase earlier values.
// None of the inputs is modified.
func Merge(layers ...types.Params) types.Params {
	out := types.Params{}
	for _, layer := range layers {
		for k, v := range layer {
			if v == nil {
				continue
			}
			out[k] = mergeValue(out[k], v)
		}
	}
	return out
}

func mergeValue(weak, strong any) any {
	strongMap, strongIsMap := Normalize(strong).(map[string]any)
	if !strongIsMap {
		return Normalize(strong)
	}
	weakMap, weakIsMap := weak.(map[string]any)
	if !weakIsMap {
		return strongMap
	}
	result := make(map[string]any, len(weakMap)+len(strongMap))
	for k, v := range weakMap {
		result[k] = Normalize(v)
	}
	for k, v := range strongMap {
		if v == nil {
			continue
		}
		result[k] = mergeValue(result[k], v)
	}
	return result
}

// MergeStates deep-merges per-path state maps, later layers winning.
func MergeStates(layers ...map[string]types.Params) map[string]types.Params {
	out := make(map[string]types.Params)
	for _, layer := range layers {
		for path, state := range layer {
			out[path] = Merge(out[path], state)
		}
	}
	return out
}
