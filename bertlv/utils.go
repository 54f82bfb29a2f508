package bertlv

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// MakeJSONString dumps a struct to json as a helper.
func MakeJSONString(data interface{}) string {
	prettifiedOSJSON, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return fmt.Sprintf(`{ "error": "%s"}`, err.Error())
	}

	return string(prettifiedOSJSON)
}

// Hex returns a copy of values with every value hex encoded, which reads
// better than base64 once marshaled.
func (values TLVData) Hex() map[string]string {
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[k] = strings.ToUpper(hex.EncodeToString(v))
	}
	return m
}
