package audit

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// encode packs v using its json tags so stored field names match the API.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode unpacks a blob into JSON-shaped values: string-keyed maps, int64
// and float64 numbers.
func decode(blob []byte) (interface{}, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(blob))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetMapDecoder(decodeStringKeyedMap)
	return dec.DecodeInterface()
}

// decodeStringKeyedMap stringifies non-string keys, as encoding/json does
// for integer-keyed maps.
func decodeStringKeyedMap(d *msgpack.Decoder) (interface{}, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	m := make(map[string]interface{}, n)
	for i := 0; i < n; i++ {
		k, err := d.DecodeInterfaceLoose()
		if err != nil {
			return nil, err
		}
		v, err := d.DecodeInterfaceLoose()
		if err != nil {
			return nil, err
		}
		m[fmt.Sprint(k)] = v
	}
	return m, nil
}

func decodeMap(blob []byte) (map[string]interface{}, error) {
	v, err := decode(blob)
	if err != nil || v == nil {
		return nil, err
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{"value": v}, nil
}
