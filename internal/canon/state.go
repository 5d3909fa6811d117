package canon

import "strings"

// Dimensions enumerates the state dimensions an instance can carry tags
// in. Tags within one dimension are mutually exclusive; a nil value set
// means the dimension accepts free-form tags (still exclusive).
var Dimensions = map[string][]string{
	"life":     {"alive", "dead"},
	"health":   {"healthy", "wounded", "critical"},
	"position": nil,
	"social":   {"friendly", "neutral", "hostile"},
}

func ValidDimension(dim string) bool {
	_, ok := Dimensions[strings.ToLower(dim)]
	return ok
}

func ValidTag(dim, tag string) bool {
	values, ok := Dimensions[strings.ToLower(dim)]
	if !ok {
		return false
	}
	if values == nil {
		return strings.TrimSpace(tag) != ""
	}
	for _, v := range values {
		if strings.EqualFold(tag, v) {
			return true
		}
	}
	return false
}

// Incompatible reports whether two tags in the same dimension cannot
// both hold. Tags in different dimensions never conflict.
func Incompatible(dimA, tagA, dimB, tagB string) bool {
	if !strings.EqualFold(dimA, dimB) {
		return false
	}
	if strings.TrimSpace(dimA) == "" {
		return false
	}
	return !strings.EqualFold(tagA, tagB)
}
