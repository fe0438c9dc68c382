package ics

import (
	"lifehub/internal/model"
)

// ParseRecords parses body and expands it over cfg's range into records
// ready for the store.
func ParseRecords(src Source, body []byte, cfg ExpandConfig) ([]model.ImportRecord, error) {
	events, err := ParseICS(src, body)
	if err != nil {
		return nil, err
	}
	res, err := ExpandOccurrences(events, cfg)
	if err != nil {
		return nil, err
	}
	return ToImportRecords(res.Occurrences), nil
}
