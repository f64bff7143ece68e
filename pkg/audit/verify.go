package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pnku766-alt/fusionintel-core/pkg/canonicalize"
	"github.com/pnku766-alt/fusionintel-core/pkg/delivery"
)

const recordSchemaURL = "https://fusionintel.schemas.local/audit/event.schema.json"

const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["ts_utc", "artifact_id", "producer_layer", "jurisdiction", "residency_class", "layer4", "layer5", "payload_snapshot"],
  "properties": {
    "ts_utc": {"type": "string", "minLength": 1},
    "artifact_id": {"type": "string"},
    "producer_layer": {"type": "string"},
    "jurisdiction": {"type": "string"},
    "residency_class": {"type": "string"},
    "layer4": {
      "type": "object",
      "additionalProperties": false,
      "required": ["allow", "reasons"],
      "properties": {
        "allow": {"type": "boolean"},
        "reasons": {"type": "array", "items": {"type": "string"}, "uniqueItems": true}
      }
    },
    "layer5": {
      "type": "object",
      "additionalProperties": false,
      "required": ["allow", "action", "reasons"],
      "properties": {
        "allow": {"type": "boolean"},
        "action": {"enum": ["deliver", "quarantine", "block"]},
        "reasons": {"type": "array", "items": {"type": "string"}, "uniqueItems": true}
      }
    },
    "payload_snapshot": {"type": ["object", "null"]}
  }
}`

var compiledRecordSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(recordSchemaURL, strings.NewReader(recordSchema)); err != nil {
		panic(fmt.Sprintf("audit: schema load failed: %v", err))
	}
	return c.MustCompile(recordSchemaURL)
}()

// VerifyReport summarizes a verified log.
type VerifyReport struct {
	Lines      int `json:"lines"`
	Deliver    int `json:"deliver"`
	Quarantine int `json:"quarantine"`
	Block      int `json:"block"`
}

// Verify reads a JSONL audit log and checks every line: it must be valid JSON,
// conform to the record schema, and already be in sorted-key compact form. The first
// bad line stops verification with an error wrapping ErrInvalidRecord.
func Verify(r io.Reader) (VerifyReport, error) {
	var report VerifyReport

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		raw := sc.Bytes()
		report.Lines++
		if len(bytes.TrimSpace(raw)) == 0 {
			return report, fmt.Errorf("%w: line %d is empty", ErrInvalidRecord, report.Lines)
		}

		var doc any
		if err := canonicalize.DecodeNumbers(raw, &doc); err != nil {
			return report, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, report.Lines, err)
		}
		if err := compiledRecordSchema.Validate(doc); err != nil {
			return report, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, report.Lines, err)
		}
		canon, err := canonicalize.SortedJSON(doc)
		if err != nil || !bytes.Equal(canon, raw) {
			return report, fmt.Errorf("%w: line %d is not canonical", ErrInvalidRecord, report.Lines)
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return report, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, report.Lines, err)
		}
		if (ev.Layer5.Action == delivery.ActionBlock) == ev.Layer5.Allow {
			return report, fmt.Errorf("%w: line %d: layer5 action %q contradicts allow=%t",
				ErrInvalidRecord, report.Lines, ev.Layer5.Action, ev.Layer5.Allow)
		}
		switch ev.Layer5.Action {
		case delivery.ActionDeliver:
			report.Deliver++
		case delivery.ActionQuarantine:
			report.Quarantine++
		case delivery.ActionBlock:
			report.Block++
		}
	}
	if err := sc.Err(); err != nil {
		return report, fmt.Errorf("audit: read log: %w", err)
	}
	return report, nil
}
