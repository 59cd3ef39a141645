package usage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	// ErrParse matches every report parse failure.
	ErrParse = errors.New("parse usage report")
	// ErrMalformedJSON means the report is not valid JSON.
	ErrMalformedJSON = fmt.Errorf("%w: malformed json", ErrParse)
	// ErrInvalidStructure means the JSON is valid but lacks a blocks array.
	ErrInvalidStructure = fmt.Errorf("%w: invalid structure", ErrParse)
)

type sessionBlockRaw struct {
	IsActive    json.RawMessage `json:"isActive"`
	TotalTokens json.RawMessage `json:"totalTokens"`
	EndTime     json.RawMessage `json:"endTime"`
	Projection  json.RawMessage `json:"projection"`
}

type projectionRaw struct {
	RemainingMinutes json.RawMessage `json:"remainingMinutes"`
	TotalTokens      json.RawMessage `json:"totalTokens"`
}

// ParseUsageReport decodes `blocks --json` output. Field-level oddities are
// tolerated; only unparseable JSON or a missing blocks array are errors.
func ParseUsageReport(data []byte) (*Report, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, ErrMalformedJSON
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidStructure)
	}
	rawBlocks, ok := top["blocks"]
	if !ok {
		return nil, fmt.Errorf("%w: missing blocks", ErrInvalidStructure)
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal(rawBlocks, &blocks); err != nil || blocks == nil {
		return nil, fmt.Errorf("%w: blocks is not an array", ErrInvalidStructure)
	}

	out := &Report{Blocks: make([]SessionBlock, 0, len(blocks))}
	for _, raw := range blocks {
		out.Blocks = append(out.Blocks, normalizeBlock(raw))
	}
	return out, nil
}

func normalizeBlock(raw json.RawMessage) SessionBlock {
	var b sessionBlockRaw
	if err := json.Unmarshal(raw, &b); err != nil {
		// Non-object entries can never be the active block.
		return SessionBlock{}
	}
	out := SessionBlock{
		Active:      rawIsTrue(b.IsActive),
		TotalTokens: rawNumber(b.TotalTokens),
		EndTime:     rawString(b.EndTime),
	}
	var p projectionRaw
	if len(b.Projection) > 0 && json.Unmarshal(b.Projection, &p) == nil {
		out.Projection = &Projection{
			RemainingMinutes: rawNumber(p.RemainingMinutes),
			TotalTokens:      rawNumber(p.TotalTokens),
		}
	}
	return out
}

func rawIsTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

func rawNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

func rawString(raw json.RawMessage) *string {
	var v string
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return &v
}

var tokenLimitPattern = regexp.MustCompile(`assuming\s+([0-9][0-9,]*)\s+token\s+limit`)

// ParseTokenLimit extracts N from "assuming N token limit" in the blocks
// table. It reports false when no positive limit is present.
func ParseTokenLimit(table string) (int64, bool) {
	match := tokenLimitPattern.FindStringSubmatch(ansi.Strip(table))
	if len(match) < 2 {
		return 0, false
	}
	digits := strings.ReplaceAll(match[1], ",", "")
	limit, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || limit <= 0 {
		return 0, false
	}
	return limit, true
}
