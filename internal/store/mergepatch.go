package store

// MergePatch applies an RFC 7396 JSON merge patch to target with
// null-stripping: keys whose patch value is nil are removed, nested objects
// merge recursively, and everything else replaces wholesale. Neither input map
// is mutated.
func MergePatch(target, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(target))
	for k, v := range target {
		out[k] = v
	}

	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		patchObj, patchIsObj := v.(map[string]interface{})
		if !patchIsObj {
			out[k] = v
			continue
		}
		targetObj, targetIsObj := out[k].(map[string]interface{})
		if !targetIsObj {
			targetObj = map[string]interface{}{}
		}
		out[k] = MergePatch(targetObj, patchObj)
	}

	return out
}
