package encoding

import (
	"sync"

	"github.com/omalloc/ssedeliver/pkg/encoding/json"
)

var (
	mu           sync.Mutex
	defaultCodec Codec = json.JSONCodec{}
)

// Codec defines the interface this module uses to encode and decode
// payloads.  Note that implementations of this interface must be thread
// safe; a Codec's methods can be called from concurrent goroutines.
type Codec interface {
	// Marshal returns the wire format of v.
	Marshal(v any) ([]byte, error)
	// Unmarshal parses the wire format into v.
	Unmarshal(data []byte, v any) error
	// Name returns the name of the Codec implementation (used in error
	// messages).  The result must be static; the result cannot change
	// between calls.
	Name() string
}

// SetDefaultCodec sets the default codec.
func SetDefaultCodec(codec Codec) {
	mu.Lock()
	defer mu.Unlock()

	defaultCodec = codec
}

func GetDefaultCodec() Codec {
	mu.Lock()
	defer mu.Unlock()

	return defaultCodec
}

func Marshal(v any) ([]byte, error) {
	return GetDefaultCodec().Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return GetDefaultCodec().Unmarshal(data, v)
}

func Name() string {
	return GetDefaultCodec().Name()
}
