package extract

import (
	"github.com/tidwall/gjson"
)

// Policy tunes how a candidate offer list is recognised.
type Policy struct {
	// LooksLikeOffer classifies a single object element.
	LooksLikeOffer func(item gjson.Result) bool
	// SampleSize is how many object elements of a list are inspected.
	SampleSize int
	// MinMatches is how many sampled elements must look like offers.
	MinMatches int
	// MaxDepth bounds the tree search; the root counts as one level.
	MaxDepth int
}

// DefaultPolicy accepts a list when 2 of its first 5 objects look like offers, searching
// at most 6 levels deep.
func DefaultPolicy() Policy {
	return Policy{
		LooksLikeOffer: LooksLikeOffer,
		SampleSize:     5,
		MinMatches:     2,
		MaxDepth:       6,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.LooksLikeOffer == nil {
		p.LooksLikeOffer = def.LooksLikeOffer
	}
	if p.SampleSize <= 0 {
		p.SampleSize = def.SampleSize
	}
	if p.MinMatches <= 0 {
		p.MinMatches = def.MinMatches
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = def.MaxDepth
	}
	return p
}

// LooksLikeOffer reports whether item carries a price alias or an advertisement or
// advertiser sub-key.
func LooksLikeOffer(item gjson.Result) bool {
	if !item.IsObject() {
		return false
	}
	found := false
	item.ForEach(func(key, _ gjson.Result) bool {
		k := key.String()
		if contains(PriceKeys, k) || contains(advertisementKeys, k) || k == "advertiser" {
			found = true
			return false
		}
		return true
	})
	return found
}

// FindOfferList locates the offer list in doc. Well-known shapes are tried first, then a
// depth-first search in document order. Only object elements are returned.
func FindOfferList(doc gjson.Result, policy Policy) ([]gjson.Result, bool) {
	policy = policy.normalized()

	if items, ok := wellKnownList(doc); ok {
		return items, true
	}
	return search(doc, policy.MaxDepth, policy)
}

func wellKnownList(doc gjson.Result) ([]gjson.Result, bool) {
	if !doc.IsObject() {
		return nil, false
	}
	result := doc.Get("result")
	if !result.IsObject() {
		return nil, false
	}
	for _, key := range wellKnownListKeys {
		list := result.Get(key)
		if !list.IsArray() {
			continue
		}
		elems := list.Array()
		if len(elems) == 0 || !leadingObjects(elems, 3) {
			continue
		}
		return objectsOnly(elems), true
	}
	return nil, false
}

func search(v gjson.Result, depth int, policy Policy) ([]gjson.Result, bool) {
	if depth <= 0 {
		return nil, false
	}

	switch {
	case v.IsArray():
		elems := v.Array()
		if accepts(elems, policy) {
			return objectsOnly(elems), true
		}
		for _, elem := range elems {
			if found, ok := search(elem, depth-1, policy); ok {
				return found, true
			}
		}
	case v.IsObject():
		var (
			found []gjson.Result
			ok    bool
		)
		v.ForEach(func(_, child gjson.Result) bool {
			found, ok = search(child, depth-1, policy)
			return !ok
		})
		if ok {
			return found, true
		}
	}
	return nil, false
}

// accepts applies the sampling rule to the object elements of a list.
func accepts(elems []gjson.Result, policy Policy) bool {
	sampled, matches := 0, 0
	for _, elem := range elems {
		if !elem.IsObject() {
			continue
		}
		sampled++
		if policy.LooksLikeOffer(elem) {
			matches++
			if matches >= policy.MinMatches {
				return true
			}
		}
		if sampled >= policy.SampleSize {
			break
		}
	}
	return false
}

func leadingObjects(elems []gjson.Result, n int) bool {
	for i := 0; i < len(elems) && i < n; i++ {
		if !elems[i].IsObject() {
			return false
		}
	}
	return true
}

func objectsOnly(elems []gjson.Result) []gjson.Result {
	out := make([]gjson.Result, 0, len(elems))
	for _, elem := range elems {
		if elem.IsObject() {
			out = append(out, elem)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
