// internal/models/prediction.go
package models

// Form field identifiers, as entered by the user.
const (
	FieldNitrogen    = "nitrogen"
	FieldPhosphorus  = "phosphorus"
	FieldPotassium   = "potassium"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldPH          = "ph"
	FieldRainfall    = "rainfall"
	FieldMoisture    = "moisture"
	FieldCrop        = "crop"
)

// NumericFields lists the form fields that must parse as finite numbers,
// in the order they are presented on the form.
var NumericFields = []string{
	FieldNitrogen,
	FieldPhosphorus,
	FieldPotassium,
	FieldTemperature,
	FieldHumidity,
	FieldPH,
	FieldRainfall,
	FieldMoisture,
}

// FormFields is every field a submission must carry.
var FormFields = append(append([]string{}, NumericFields...), FieldCrop)

// Metadata is published by the inference service and describes valid inputs
// and how to decode predicted classes.
type Metadata struct {
	FeatureOrder     []string       `json:"feature_order"`
	Crops            []string       `json:"crops"`
	LabelMapping     map[int]string `json:"label_mapping"`
	ArtifactsDir     string         `json:"artifacts_dir"`
	UsesPreprocessor bool           `json:"uses_preprocessor"`
}

// HasCrop reports whether crop is one of the service's known crops.
func (m *Metadata) HasCrop(crop string) bool {
	if m == nil {
		return false
	}
	for _, c := range m.Crops {
		if c == crop {
			return true
		}
	}
	return false
}

// Label returns the fertilizer name registered for a predicted class.
func (m *Metadata) Label(class int) (string, bool) {
	if m == nil || m.LabelMapping == nil {
		return "", false
	}
	name, ok := m.LabelMapping[class]
	return name, ok
}

// PredictRequest is the body of POST /predict. Field order matches the wire
// contract, which is not necessarily Metadata.FeatureOrder.
type PredictRequest struct {
	N           float64 `json:"N"`
	P           float64 `json:"P"`
	K           float64 `json:"K"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"pH"`
	Rainfall    float64 `json:"rainfall"`
	Moisture    float64 `json:"moisture"`
	Crop        string  `json:"crop"`
}

// PredictResponse is the successful answer of POST /predict.
type PredictResponse struct {
	Fertilizer     string `json:"fertilizer"`
	PredictedClass int    `json:"predicted_class"`
}
