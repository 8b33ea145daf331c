// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecEnvelope(t *testing.T) {
	b, err := JSONCodec{}.Encode(&request{Method: "listpeers", Params: []interface{}{"02ab", nil}, ID: "7"})
	require.NoError(t, err)
	assert.Equal(t, `{"method":"listpeers","params":["02ab",null],"id":"7"}`, string(b))
}

func TestNumberCodec(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, NumberCodec{}.Decode([]byte(`{"msat":18446744073709551615}`), &v))
	assert.Equal(t, json.Number("18446744073709551615"), v["msat"])

	var raw []byte
	require.NoError(t, NumberCodec{}.Decode([]byte(`{"a":1}`), &raw))
	assert.Equal(t, `{"a":1}`, string(raw))

	require.Error(t, NumberCodec{}.Decode([]byte(`{`), &v))
}
