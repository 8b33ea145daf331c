// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"bytes"
	"encoding/json"
)

// Codec encodes request envelopes and decodes call results into replies.
// The daemon only speaks JSON, so a Codec may change how JSON is produced
// (field naming, number handling) but not the format.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// JSONCodec is the encoding/json codec
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// NumberCodec decodes numbers as json.Number so msat amounts above 2^53
// survive decoding into interface{} replies.
type NumberCodec struct{}

func (NumberCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (NumberCodec) Decode(data []byte, v interface{}) error {
	if b, ok := v.(*[]byte); ok {
		*b = append((*b)[:0], data...)
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}
