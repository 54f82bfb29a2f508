package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/areese/uicc-terminal/bertlv"
)

var errEmptyAPDU = errors.New("empty apdu")

// parseAPDU accepts hex with optional spaces and colons, "00 A4:04 00".
func parseAPDU(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	if s == "" {
		return nil, errEmptyAPDU
	}
	apdu, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parsing apdu: %w", err)
	}
	return apdu, nil
}

// formatResponse renders a response APDU as hex followed by its status word,
// and the decoded template when the body holds one.
func formatResponse(resp []byte) string {
	body, sw, err := bertlv.SplitResponse(resp)
	if err != nil {
		return strings.ToUpper(hex.EncodeToString(resp)) + "\n"
	}

	var b strings.Builder
	if len(body) > 0 {
		fmt.Fprintf(&b, "%s ", strings.ToUpper(hex.EncodeToString(body)))
	}
	fmt.Fprintf(&b, "[%s]\n", sw)

	if len(body) == 0 || !isTemplate(body[0]) {
		return b.String()
	}
	values, err := bertlv.Parse(body, nil)
	if err != nil {
		fmt.Fprintf(&b, "decoding template: %v\n", err)
		return b.String()
	}
	b.WriteString(bertlv.MakeJSONString(values.Hex()))
	b.WriteString("\n")
	return b.String()
}

func isTemplate(tag byte) bool {
	switch fmt.Sprintf("%02X", tag) {
	case bertlv.TagFCP, bertlv.TagFMD, bertlv.TagFCI:
		return true
	}
	return false
}
