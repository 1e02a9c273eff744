// Package jsonequal compares JSON documents structurally. Object keys may
// appear in any order, array elements must appear in the same order.
package jsonequal

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
)

var ErrTrailingData = errors.New("unexpected data after json value")

func Equal(a, b []byte) bool {
	va, err := decode(a)
	if err != nil {
		return false
	}

	vb, err := decode(b)
	if err != nil {
		return false
	}

	return reflect.DeepEqual(va, vb)
}

func EqualString(a, b string) bool {
	return Equal([]byte(a), []byte(b))
}

func decode(b []byte) (any, error) {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()

	var v any
	if err := d.Decode(&v); err != nil {
		return nil, err
	}

	if err := d.Decode(&struct{}{}); err != io.EOF {
		return nil, ErrTrailingData
	}

	return v, nil
}
