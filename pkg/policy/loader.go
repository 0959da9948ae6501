package policy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/meshward/policyguard/pkg/policyerr"
)

// ParseYAML splits a multi-document YAML stream on lines containing
// exactly "---" and parses each non-empty document as a Policy, per
// spec.md §6.
func ParseYAML(data []byte) ([]Policy, error) {
	docs := splitYAMLDocuments(data)
	policies := make([]Policy, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		if err := validateYAMLDocumentShape(doc); err != nil {
			return nil, err
		}

		var p Policy
		if err := yaml.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", policyerr.ErrParse, err)
		}
		p.ApplyDefaults()
		policies = append(policies, p)
	}
	return policies, nil
}

// splitYAMLDocuments splits on lines that are exactly "---".
func splitYAMLDocuments(data []byte) []string {
	var docs []string
	var current bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "---" {
			docs = append(docs, current.String())
			current.Reset()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	docs = append(docs, current.String())
	return docs
}

// ParseJSON parses a single-document JSON policy.
func ParseJSON(data []byte) (*Policy, error) {
	if err := ValidateDocumentShape(data); err != nil {
		return nil, err
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: json: %v", policyerr.ErrParse, err)
	}
	p.ApplyDefaults()
	return &p, nil
}

// validateYAMLDocumentShape re-decodes a single YAML document into the
// generic form encoding/json produces (map[string]interface{}, float64
// numbers) and runs it through the same JSON Schema gate as ParseJSON, so
// YAML and JSON policy documents are held to the one shape check.
func validateYAMLDocumentShape(doc string) error {
	var generic interface{}
	if err := yaml.Unmarshal([]byte(doc), &generic); err != nil {
		return fmt.Errorf("%w: yaml: %v", policyerr.ErrParse, err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("%w: yaml to json: %v", policyerr.ErrParse, err)
	}
	return ValidateDocumentShape(raw)
}

// ParsePackYAML parses a Pack document (a versioned container of
// policies) from a single YAML document.
func ParsePackYAML(data []byte) (*Pack, error) {
	var pk Pack
	if err := yaml.Unmarshal(data, &pk); err != nil {
		return nil, fmt.Errorf("%w: yaml pack: %v", policyerr.ErrParse, err)
	}
	return &pk, nil
}

// ValidateSemanticVersion checks that a policy's Version field parses as
// a semantic version, an optional stricter check beyond the spec's bare
// "non-empty string" requirement, useful for deployments that gate
// rollout on version compatibility.
func ValidateSemanticVersion(version string) error {
	if _, err := semver.NewVersion(version); err != nil {
		return fmt.Errorf("%w: version '%s' is not a valid semantic version: %v", policyerr.ErrInvalidFieldValue, version, err)
	}
	return nil
}

// LoadPolicyYAML parses data as a multi-document YAML stream and adds
// every resulting policy to the evaluator, validating each individually.
func (e *Evaluator) LoadPolicyYAML(data []byte) error {
	policies, err := ParseYAML(data)
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := e.AddPolicy(p); err != nil {
			return err
		}
	}
	return nil
}

// LoadPack validates and adds every policy in a Pack to the evaluator.
func (e *Evaluator) LoadPack(pk *Pack) error {
	if err := pk.Validate(); err != nil {
		return err
	}
	for _, p := range pk.Policies {
		if err := e.AddPolicy(p); err != nil {
			return err
		}
	}
	return nil
}
