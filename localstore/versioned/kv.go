package versioned

import (
	"fmt"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

// PrefixSeparator separates a KV's namespace prefix from its keys.
const PrefixSeparator = "/"

// Upgrade migrates an Object from its stored version to version+1.
type Upgrade func(old *Object) (*Object, error)

// UpgradeTable lists every Upgrade needed to reach CurrentVersion.
type UpgradeTable struct {
	CurrentVersion uint64
	Table          []Upgrade
}

type root struct {
	data ekv.KeyValue
}

// KV stores versioned records behind an ekv.KeyValue, namespaced by prefix.
type KV struct {
	r      *root
	prefix string
}

// NewKV wraps an ekv.KeyValue (Memstore for tests, Filestore for a real
// session) as a versioned.KV.
func NewKV(data ekv.KeyValue) *KV {
	return &KV{r: &root{data: data}}
}

func (v *KV) makeKey(key string, version uint64) string {
	return fmt.Sprintf("%s%s/%d", v.prefix, key, version)
}

// Get fetches the record stored at key/version.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	k := v.makeKey(key, version)
	result := Object{}
	if err := v.r.data.Get(k, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAndUpgrade fetches the newest stored version of key at or below
// ut.CurrentVersion and runs it through ut.Table until it reaches
// CurrentVersion.
func (v *KV) GetAndUpgrade(key string, ut UpgradeTable) (*Object, error) {
	if uint64(len(ut.Table)) != ut.CurrentVersion {
		jww.FATAL.Panicf("versioned: upgrade table length (%d) does not match "+
			"current version (%d) for key %s", len(ut.Table), ut.CurrentVersion, key)
	}

	var result *Object
	for version := ut.CurrentVersion + 1; version != 0; {
		version--
		k := v.makeKey(key, version)
		jww.TRACE.Printf("versioned: get %s", k)
		candidate := &Object{}
		if err := v.r.data.Get(k, candidate); err == nil {
			result = candidate
			break
		}
	}
	if result == nil {
		return nil, errors.Errorf("versioned: no stored version found for key %s", key)
	}

	for result.Version < ut.CurrentVersion {
		old := result.Version
		var err error
		result, err = ut.Table[old](result)
		if err != nil || result.Version == old {
			jww.FATAL.Panicf("versioned: failed to upgrade key %s from version %d", key, old)
		}
	}
	return result, nil
}

// Set upserts a record at key/object.Version.
func (v *KV) Set(key string, object *Object) error {
	return v.r.data.Set(v.makeKey(key, object.Version), object)
}

// Delete removes the record at key/version.
func (v *KV) Delete(key string, version uint64) error {
	return v.r.data.Delete(v.makeKey(key, version))
}

// Prefix returns a KV scoped under an additional namespace segment.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{r: v.r, prefix: v.prefix + prefix + PrefixSeparator}
}

// GetPrefix reports this KV's namespace.
func (v *KV) GetPrefix() string { return v.prefix }

// IsMemStore reports whether the backing store is an in-memory Memstore.
func (v *KV) IsMemStore() bool {
	_, ok := v.r.data.(*ekv.Memstore)
	return ok
}
