package policyloader

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type documentSchema struct {
	name   string
	schema *jsonschema.Schema
}

func (s documentSchema) String() string { return s.name }

func (s documentSchema) validate(v any) error { return s.schema.Validate(v) }

func mustCompile(name, src string) documentSchema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://fusionintel.schemas.local/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("policyloader: schema %s load failed: %v", name, err))
	}
	return documentSchema{name: name, schema: c.MustCompile(url)}
}

const stringList = `{"type": "array", "items": {"type": "string"}}`

var policySchema = mustCompile("policy", `{
  "type": "object",
  "properties": {
    "version": {"type": "string"},
    "audit_log_path": {"type": ["string", "null"]},
    "layer4": {
      "type": "object",
      "properties": {
        "allowed_jurisdictions": `+stringList+`,
        "allowed_residency_classes": `+stringList+`,
        "blocked_export_control_flags": `+stringList+`,
        "blocked_sanctions_flags": `+stringList+`,
        "rules": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "expression"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "expression": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    },
    "layer5": {
      "type": "object",
      "properties": {
        "blocked_export_control_flags": `+stringList+`,
        "blocked_sanctions_flags": `+stringList+`,
        "quarantine_export_control_flags": `+stringList+`,
        "quarantine_sanctions_flags": `+stringList+`,
        "require_layer4_allow": {"type": "boolean"}
      }
    },
    "layer6": {
      "type": "object",
      "properties": {
        "include_payload": {"type": "boolean"},
        "redact_payload_keys": `+stringList+`
      }
    }
  }
}`)

var envelopeSchema = mustCompile("envelope", `{
  "type": "object",
  "properties": {
    "artifact_id": {"type": "string"},
    "artifact_type": {"type": "string"},
    "producer_layer": {"type": "string"},
    "payload": {"type": ["object", "null"]},
    "metadata": {"type": ["object", "null"]},
    "jurisdiction_tags": {
      "type": "object",
      "properties": {
        "jurisdiction": {"type": "string"},
        "residency_class": {"type": "string"},
        "export_control_flags": `+stringList+`,
        "sanctions_flags": `+stringList+`
      }
    },
    "provenance_ref": {
      "type": "object",
      "properties": {
        "event_hash": {"type": "string"},
        "signature_ref": {"type": "string"},
        "ledger_ref": {"type": "string"}
      }
    }
  }
}`)
