// internal/workers/fertilizer/fetch-metadata/models.go
package fetchmetadata

// Output is written back as process variables. Label keys are strings so the
// mapping can be read from FEEL expressions.
type Output struct {
	Crops        []string          `json:"crops"`
	FeatureOrder []string          `json:"featureOrder"`
	LabelMapping map[string]string `json:"labelMapping"`
}
