// Package encoding provides the value codecs used by the cache backends.
package encoding

import (
	"errors"

	"github.com/bytedance/sonic"
)

// ErrNilEncoding is returned when a nil codec is passed to Marshal or Unmarshal.
var ErrNilEncoding = errors.New("encoding: nil codec")

// Encoding converts values to and from their stored byte form.
type Encoding interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Marshal encodes v with e.
func Marshal(e Encoding, v any) ([]byte, error) {
	if e == nil {
		return nil, ErrNilEncoding
	}
	return e.Marshal(v)
}

// Unmarshal decodes data into v with e.
func Unmarshal(e Encoding, data []byte, v any) error {
	if e == nil {
		return ErrNilEncoding
	}
	return e.Unmarshal(data, v)
}

// JSONEncoding is a JSON codec backed by sonic.
type JSONEncoding struct{}

var _ Encoding = JSONEncoding{}

func (JSONEncoding) Name() string { return "json" }

func (JSONEncoding) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (JSONEncoding) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
