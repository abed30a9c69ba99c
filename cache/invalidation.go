package cache

// Invalidation names the keys to drop: exact keys, whole resources, or the list keys of resources.
type Invalidation struct {
	Keys      []Key    `json:"keys,omitempty"`
	Resources []string `json:"resources,omitempty"`
	Lists     []string `json:"lists,omitempty"`
}

func (inv Invalidation) IsEmpty() bool {
	return len(inv.Keys) == 0 && len(inv.Resources) == 0 && len(inv.Lists) == 0
}

func (inv Invalidation) Matches(key Key) bool {
	if key.IsNull() {
		return false
	}
	for _, k := range inv.Keys {
		if k == key {
			return true
		}
	}
	for _, r := range inv.Resources {
		if r == key.Resource {
			return true
		}
	}
	for _, r := range inv.Lists {
		if r == key.Resource && key.Kind == KindList {
			return true
		}
	}
	return false
}

// Merge combines two invalidations.
func (inv Invalidation) Merge(other Invalidation) Invalidation {
	return Invalidation{
		Keys:      append(append([]Key(nil), inv.Keys...), other.Keys...),
		Resources: append(append([]string(nil), inv.Resources...), other.Resources...),
		Lists:     append(append([]string(nil), inv.Lists...), other.Lists...),
	}
}

// TouchedResources lists each resource named by the invalidation once, in order of appearance.
func (inv Invalidation) TouchedResources() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, k := range inv.Keys {
		add(k.Resource)
	}
	for _, r := range inv.Resources {
		add(r)
	}
	for _, r := range inv.Lists {
		add(r)
	}
	return out
}
