package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

// Decode parses and validates one snapshot document. This is the single
// entry point for untrusted bytes, whether they arrived over the transfer
// channel or from an imported file.
func Decode(data []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := Validate(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Encode serializes a snapshot for transfer, stamping the export metadata.
func Encode(snap *models.Snapshot) ([]byte, error) {
	out := snap.Clone()
	out.ExportDate = time.Now().UTC().Format(time.RFC3339)
	if out.Version == "" {
		out.Version = CurrentVersion
	}
	return json.Marshal(out)
}
