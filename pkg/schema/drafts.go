package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

const draft202012 = "https://json-schema.org/draft/2020-12/schema"

// legacyDrafts are the $schema URIs upgraded to 2020-12 before compiling,
// keyed without scheme or trailing '#'.
var legacyDrafts = map[string]bool{
	"json-schema.org/draft-04/schema":      true,
	"json-schema.org/draft-06/schema":      true,
	"json-schema.org/draft-07/schema":      true,
	"json-schema.org/draft/2019-09/schema": true,
}

func draftKey(uri string) string {
	uri = strings.TrimSpace(uri)
	uri = strings.TrimPrefix(uri, "https://")
	uri = strings.TrimPrefix(uri, "http://")
	return strings.TrimSuffix(uri, "#")
}

// upgrade rewrites a draft-04/06/07 or 2019-09 document into its 2020-12
// form. Documents that name no $schema or 2020-12 pass through unchanged;
// any other $schema is rejected.
func upgrade(raw json.RawMessage) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Boolean schemas and malformed documents are left to the decoder.
		return raw, nil
	}
	uri, _ := doc["$schema"].(string)
	switch {
	case uri == "" || draftKey(uri) == draftKey(draft202012):
		return raw, nil
	case !legacyDrafts[draftKey(uri)]:
		return nil, fmt.Errorf("%w: unsupported $schema %q", ErrInvalidSchema, uri)
	}

	upgradeNode(doc)
	doc["$schema"] = draft202012
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return out, nil
}

// upgradeNode rewrites one schema object and recurses into its subschemas.
func upgradeNode(node map[string]any) {
	// Tuple form: items array becomes prefixItems, additionalItems becomes items.
	if tuple, ok := node["items"].([]any); ok {
		node["prefixItems"] = tuple
		delete(node, "items")
		if extra, ok := node["additionalItems"]; ok {
			node["items"] = extra
			delete(node, "additionalItems")
		}
	} else {
		delete(node, "additionalItems")
	}

	// draft-04 boolean exclusive bounds.
	exclusiveBound(node, "exclusiveMinimum", "minimum")
	exclusiveBound(node, "exclusiveMaximum", "maximum")

	if deps, ok := node["dependencies"].(map[string]any); ok {
		required := map[string]any{}
		schemas := map[string]any{}
		for k, v := range deps {
			if _, isList := v.([]any); isList {
				required[k] = v
			} else {
				schemas[k] = v
			}
		}
		if len(required) > 0 {
			node["dependentRequired"] = required
		}
		if len(schemas) > 0 {
			node["dependentSchemas"] = schemas
		}
		delete(node, "dependencies")
	}

	// draft-04 used "id".
	if id, ok := node["id"].(string); ok {
		if _, has := node["$id"]; !has {
			node["$id"] = id
		}
		delete(node, "id")
	}

	for _, key := range []string{"additionalProperties", "items", "contains", "propertyNames", "not", "if", "then", "else"} {
		visit(node[key])
	}
	for _, key := range []string{"allOf", "anyOf", "oneOf", "prefixItems"} {
		if list, ok := node[key].([]any); ok {
			for _, sub := range list {
				visit(sub)
			}
		}
	}
	for _, key := range []string{"properties", "patternProperties", "definitions", "$defs", "dependentSchemas"} {
		if m, ok := node[key].(map[string]any); ok {
			for _, sub := range m {
				visit(sub)
			}
		}
	}
}

func visit(v any) {
	if m, ok := v.(map[string]any); ok {
		upgradeNode(m)
	}
}

func exclusiveBound(node map[string]any, exclusive, inclusive string) {
	flag, ok := node[exclusive].(bool)
	if !ok {
		return
	}
	delete(node, exclusive)
	if flag {
		if bound, ok := node[inclusive]; ok {
			node[exclusive] = bound
			delete(node, inclusive)
		}
	}
}
