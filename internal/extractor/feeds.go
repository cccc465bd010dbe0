package extractor

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ammobase/harvester/pkg/types"
)

// ParseFeed parses an affiliate-network feed into raw items. An unknown
// network is a terminal configuration error.
func ParseFeed(network types.AffiliateNetwork, content []byte) ([]types.RawItem, error) {
	switch network {
	case types.NetworkAvantLink:
		return parseAvantLink(content)
	case types.NetworkImpact:
		return parseImpact(content)
	default:
		return nil, fmt.Errorf("unsupported affiliate network %q", network)
	}
}

// parseAvantLink reads the pipe- or comma-delimited AvantLink product feed.
// The first row is the header; every following row becomes one raw item
// keyed by header name.
func parseAvantLink(content []byte) ([]types.RawItem, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	if bytes.ContainsRune(bytes.SplitN(content, []byte("\n"), 2)[0], '|') {
		reader.Comma = '|'
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading feed header: %w", err)
	}

	var items []types.RawItem
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// One mangled row should not discard the rest of the feed.
			continue
		}
		item := make(types.RawItem, len(header))
		for i, col := range header {
			if i < len(record) {
				item[col] = record[i]
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// parseImpact reads the Impact catalog export: a JSON object with the item
// list under "Items" (or lowercase), or a bare array.
func parseImpact(content []byte) ([]types.RawItem, error) {
	var items []types.RawItem
	if err := json.Unmarshal(content, &items); err == nil {
		return items, nil
	}

	var wrapper struct {
		Items      []types.RawItem `json:"Items"`
		ItemsLower []types.RawItem `json:"items"`
	}
	if err := json.Unmarshal(content, &wrapper); err != nil {
		return nil, fmt.Errorf("decoding impact catalog: %w", err)
	}
	if len(wrapper.Items) > 0 {
		return wrapper.Items, nil
	}
	return wrapper.ItemsLower, nil
}
