package sim

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// scenarioSchema constrains scenario files before decoding: all four fields
// present and non-empty, nothing extra.
const scenarioSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "config", "script", "expect"],
	"additionalProperties": false,
	"properties": {
		"name":   {"type": "string", "minLength": 1},
		"config": {"type": "string", "minLength": 1},
		"script": {"type": "string", "minLength": 1},
		"expect": {"type": "string"}
	}
}`

var compiledScenarioSchema = jsonschema.MustCompileString("scenario.schema.json", scenarioSchema)

// ParseScenario validates and decodes a JSON scenario document.
func ParseScenario(data []byte) (Scenario, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return Scenario{}, fmt.Errorf("scenario: %w", err)
	}
	if err := compiledScenarioSchema.Validate(instance); err != nil {
		return Scenario{}, fmt.Errorf("scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("scenario: %w", err)
	}
	return s, nil
}

// LoadScenario reads a scenario file from disk.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	return ParseScenario(data)
}
