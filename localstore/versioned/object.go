// Package versioned provides a storage/versioned-style key/value wrapper:
// every record stored on disk carries a version and a timestamp alongside
// its serialized bytes, so upgrade tables can migrate old records forward.
package versioned

import (
	"encoding/json"
	"fmt"
	"time"
)

// Object is the envelope every versioned.KV entry is stored as.
type Object struct {
	Version   uint64
	Timestamp time.Time
	Data      []byte
}

// Unmarshal deserializes an Object from JSON bytes.
func (o *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, o)
}

// Marshal serializes an Object to JSON. Objects contain only simple
// exported fields, so a marshal failure indicates a bug, not bad input.
func (o *Object) Marshal() []byte {
	d, err := json.Marshal(o)
	if err != nil {
		panic(fmt.Sprintf("versioned: could not marshal object: %+v", o))
	}
	return d
}
