package store

import "encoding/json"

// marshalDoc and unmarshalDoc centralize the JSON codec used for every
// table's data column, so Select/Insert/Update stay table-agnostic.
func marshalDoc(doc interface{}) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalDoc(data string, out interface{}) error {
	return json.Unmarshal([]byte(data), out)
}
