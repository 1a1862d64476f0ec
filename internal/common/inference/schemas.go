package inference

import "fertismart/internal/common/validation"

// Shapes the client accepts from the inference service. Anything else is
// rejected as INVALID_RESPONSE.

var metadataSchema = validation.MustCompile("metadata", `{
  "type": "object",
  "required": ["feature_order", "crops", "label_mapping"],
  "properties": {
    "feature_order":     {"type": "array", "items": {"type": "string"}},
    "crops":             {"type": "array", "items": {"type": "string"}, "uniqueItems": true},
    "label_mapping": {
      "type": "object",
      "patternProperties": {"^-?[0-9]+$": {"type": "string"}},
      "additionalProperties": false
    },
    "artifacts_dir":     {"type": "string"},
    "uses_preprocessor": {"type": "boolean"}
  }
}`)

var predictResponseSchema = validation.MustCompile("predict response", `{
  "type": "object",
  "required": ["fertilizer", "predicted_class"],
  "properties": {
    "fertilizer":      {"type": "string", "minLength": 1},
    "predicted_class": {"type": "integer"}
  }
}`)
