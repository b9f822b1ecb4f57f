package server

import (
	"encoding/json"
	"errors"
)

var errInvalidPayload = errors.New("invalid payload")

// decodePayload re-marshals the loosely typed envelope payload into the
// expected request shape.
func decodePayload(payload interface{}, out interface{}) error {
	if payload == nil {
		return errInvalidPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return err
	}
	return nil
}
