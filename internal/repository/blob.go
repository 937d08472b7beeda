package repository

import (
	"encoding/json"

	"github.com/luccasmb/protocol-desk/internal/models"
)

// The persistence backends store the full record set as one JSON array and
// replace it wholesale on every save. A set that fails to parse is treated as
// empty rather than surfaced as an error; only IO failures propagate.

func decodeRecordSet(raw []byte) ([]models.Protocol, bool) {
	if len(raw) == 0 {
		return []models.Protocol{}, true
	}
	var records []models.Protocol
	if err := json.Unmarshal(raw, &records); err != nil {
		return []models.Protocol{}, false
	}
	if records == nil {
		records = []models.Protocol{}
	}
	return records, true
}

func encodeRecordSet(records []models.Protocol) ([]byte, error) {
	if records == nil {
		records = []models.Protocol{}
	}
	return json.Marshal(records)
}
