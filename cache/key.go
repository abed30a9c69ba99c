package cache

import (
	"encoding/json"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/models"
)

const (
	KindList   = "list"
	KindDetail = "detail"
)

// Key identifies one cached result. Two keys are equal iff resource, kind and
// canonical parameters are equal. The zero Key is the null key: nothing is fetched for it.
type Key struct {
	Resource string `json:"resource"`
	Kind     string `json:"kind"`
	Param    string `json:"param"`
}

var NullKey = Key{}

func (k Key) IsNull() bool {
	return k.Resource == ""
}

func (k Key) String() string {
	if k.IsNull() {
		return ""
	}
	return k.Resource + ":" + k.Kind + ":" + k.Param
}

// ListKey keys a list query by its options in canonical JSON form.
func ListKey(resource string, opts models.QueryOptions) Key {
	return Key{Resource: resource, Kind: KindList, Param: canonical(opts)}
}

// DetailKey keys the detail rows of one record. An empty id yields the null key.
func DetailKey(resource string, id string) Key {
	id = strings.TrimSpace(id)
	if id == "" {
		return NullKey
	}
	return Key{Resource: resource, Kind: KindDetail, Param: id}
}

// CompositeKey keys a fetch that combines several backend calls under one entry.
func CompositeKey(resource string, kind string, params any) Key {
	return Key{Resource: resource, Kind: kind, Param: canonical(params)}
}

func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
