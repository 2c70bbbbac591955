package results

import (
	"encoding/json"
	"io"
	"maps"

	"hermannm.dev/wrap"
)

// Maps a field ID or metric key to its raw value. Values are as decoded from JSON with
// UseNumber, i.e. string, json.Number, bool or nil, though backends may also produce float64.
type ResultRow map[string]any

type ResultSet struct {
	Results []ResultRow       `json:"results"`
	Errors  []json.RawMessage `json:"errors"`
}

func (resultSet ResultSet) HasErrors() bool {
	return len(resultSet.Errors) != 0
}

func (resultSet ResultSet) Clone() ResultSet {
	clone := ResultSet{
		Results: make([]ResultRow, len(resultSet.Results)),
		Errors:  make([]json.RawMessage, len(resultSet.Errors)),
	}
	for i, row := range resultSet.Results {
		clone.Results[i] = maps.Clone(row)
	}
	copy(clone.Errors, resultSet.Errors)
	return clone
}

// Decodes a ResultSet, keeping numbers as json.Number so that they are not rounded before
// formatting.
func Decode(reader io.Reader) (ResultSet, error) {
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()

	var resultSet ResultSet
	if err := decoder.Decode(&resultSet); err != nil {
		return ResultSet{}, wrap.Error(err, "failed to decode result set")
	}
	return resultSet, nil
}
