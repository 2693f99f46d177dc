package ir

// CleanJSONSchemaForGemini strips JSON Schema keywords Gemini's
// functionDeclarations.parameters does not support, recursively. Adapted
// from the teacher's Claude/Gemini schema-cleaning helpers: both target
// providers only accept a small subset of draft-07 keywords for tool
// parameter schemas, and both need the same recursive-descent shape.
func CleanJSONSchemaForGemini(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}

	unsupported := []string{
		"strict", "$schema", "$id", "$defs", "definitions",
		"additionalProperties", "patternProperties", "unevaluatedProperties",
		"minProperties", "maxProperties", "dependentRequired", "dependentSchemas",
		"if", "then", "else", "not", "contentEncoding", "contentMediaType",
		"deprecated", "readOnly", "writeOnly", "examples", "$comment",
		"$vocabulary", "$anchor", "$dynamicRef", "$dynamicAnchor", "propertyNames",
	}
	for _, kw := range unsupported {
		delete(schema, kw)
	}
	cleanNestedSchemas(schema)
	return schema
}

func cleanNestedSchemas(schema map[string]interface{}) {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for _, v := range props {
			if propSchema, ok := v.(map[string]interface{}); ok {
				CleanJSONSchemaForGemini(propSchema)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		CleanJSONSchemaForGemini(items)
	}
	for _, key := range []string{"allOf", "anyOf", "oneOf"} {
		if arr, ok := schema[key].([]interface{}); ok {
			for _, item := range arr {
				if itemSchema, ok := item.(map[string]interface{}); ok {
					CleanJSONSchemaForGemini(itemSchema)
				}
			}
		}
	}
	// Flatten type arrays like ["string", "null"] down to the first non-null type.
	if typeVal, ok := schema["type"].([]interface{}); ok && len(typeVal) > 0 {
		for _, t := range typeVal {
			if tStr, ok := t.(string); ok && tStr != "null" {
				schema["type"] = tStr
				break
			}
		}
	}
}
