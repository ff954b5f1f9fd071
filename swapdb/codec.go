package swapdb

import (
	"encoding/json"
	"fmt"
)

// marshalSwap serializes a swap record for storage.
func marshalSwap(swap *SwapRecord) ([]byte, error) {
	return json.Marshal(swap)
}

// unmarshalSwap deserializes a stored swap record. A failure here means the
// stored value is corrupt; callers treat it as absent data.
func unmarshalSwap(value []byte) (*SwapRecord, error) {
	var swap SwapRecord
	if err := json.Unmarshal(value, &swap); err != nil {
		return nil, fmt.Errorf("corrupt swap record: %w", err)
	}

	return &swap, nil
}
