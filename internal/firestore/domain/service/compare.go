package service

import (
	"bytes"
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"firestore-typed/internal/firestore/domain/repository"
)

// Type ranks in Firestore ordering. Values of different types compare by rank.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTimestamp
	rankString
	rankBytes
	rankReference
	rankArray
	rankMap
	rankUnknown
)

// TypeOrder returns the rank of a neutral value.
func TypeOrder(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int, int32, int64, float32, float64:
		return rankNumber
	case time.Time:
		return rankTimestamp
	case string:
		return rankString
	case []byte:
		return rankBytes
	case repository.RefValue, *repository.RefValue:
		return rankReference
	case []any:
		return rankArray
	case map[string]any:
		return rankMap
	}
	return rankUnknown
}

// CompareValues orders two neutral values the way Firestore does: by type rank, then
// within the type. NaN sorts before every other number.
func CompareValues(a, b any) int {
	ra, rb := TypeOrder(a), TypeOrder(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNull:
		return 0
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case rankNumber:
		ai, aInt := asInt(a)
		bi, bInt := asInt(b)
		if aInt && bInt {
			return cmp.Compare(ai, bi)
		}
		af, _ := AsFloat(a)
		bf, _ := AsFloat(b)
		return compareFloats(af, bf)
	case rankTimestamp:
		return a.(time.Time).Compare(b.(time.Time))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBytes:
		return bytes.Compare(a.([]byte), b.([]byte))
	case rankReference:
		return compareRefs(refPath(a), refPath(b))
	case rankArray:
		la, lb := a.([]any), b.([]any)
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := CompareValues(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(la), len(lb))
	case rankMap:
		return compareMaps(a.(map[string]any), b.(map[string]any))
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	case math.IsNaN(b):
		return 1
	}
	return cmp.Compare(a, b)
}

func refPath(v any) string {
	switch r := v.(type) {
	case repository.RefValue:
		return r.Path
	case *repository.RefValue:
		return r.Path
	}
	return ""
}

// compareRefs compares segment by segment so "a/b" sorts before "a/b/c/d".
func compareRefs(a, b string) int {
	return slices.Compare(strings.Split(a, "/"), strings.Split(b, "/"))
}

func compareMaps(a, b map[string]any) int {
	ka := sortedKeys(a)
	kb := sortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := CompareValues(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(ka), len(kb))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ValueAt reads a nested field from a neutral document.
func ValueAt(doc map[string]any, path []string) (any, bool) {
	var current any = doc
	for _, segment := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
