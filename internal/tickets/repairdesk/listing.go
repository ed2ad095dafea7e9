package repairdesk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"nestdesk/internal/tickets/models"
)

// decodeListing returns the records and the number of items the page
// carried, including ones dropped as malformed. It accepts the three listing layouts RepairDesk has used:
// "data" as an array, "data.ticketData" as an array, or "data.ticketData"
// as an object keyed by position.
func decodeListing(data json.RawMessage) (models.Records, int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, 0, errors.New(`missing "data"`)
	}

	switch data[0] {
	case '[':
		return decodeItems(data)
	case '{':
		var wrapper struct {
			TicketData json.RawMessage `json:"ticketData"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, 0, err
		}
		td := bytes.TrimSpace(wrapper.TicketData)
		if len(td) == 0 || bytes.Equal(td, []byte("null")) {
			return nil, 0, errors.New(`"data" has no "ticketData"`)
		}
		if td[0] == '{' {
			return decodeKeyed(td)
		}
		return decodeItems(td)
	default:
		return nil, 0, fmt.Errorf(`unexpected "data" token %q`, data[0])
	}
}

func decodeItems(data json.RawMessage) (models.Records, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, err
	}
	return toRecords(items), len(items), nil
}

func decodeKeyed(data json.RawMessage) (models.Records, int, error) {
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, 0, err
	}

	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, comparePositionKeys)

	items := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		items = append(items, keyed[k])
	}
	return toRecords(items), len(items), nil
}

// comparePositionKeys orders numeric keys numerically, ahead of any others.
func comparePositionKeys(a, b string) int {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai - bi
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// toRecords keeps JSON objects and JSON strings that contain an object.
// Anything else is vendor noise and is dropped.
func toRecords(items []json.RawMessage) models.Records {
	records := make(models.Records, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if json.Unmarshal(item, &s) != nil {
				continue
			}
			item = bytes.TrimSpace([]byte(s))
		}
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var r models.Record
		if json.Unmarshal(item, &r) != nil {
			continue
		}
		records = append(records, r)
	}
	return records
}
