package jsonext

import (
	"bytes"
	"encoding/json"

	"github.com/andreyvit/jsonfix"
)

// UnmarshalLenient decodes raw the way the rest of this codebase decodes
// anything that came off the wire from a third party: tolerant of trailing
// commas and other harmless JSON5-isms via jsonfix, rather than failing
// outright on a byte-for-byte spec violation a hand-rolled remote is prone
// to produce.
func UnmarshalLenient(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(jsonfix.Bytes(raw)))
	return dec.Decode(v)
}
