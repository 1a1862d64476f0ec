// internal/workers/fertilizer/predict-fertilizer/models.go
package predictfertilizer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"fertismart/internal/models"
)

// FieldValue accepts a JSON string or number and keeps its text, so
// process variables can carry readings either way.
type FieldValue string

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FieldValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*v = FieldValue(n.String())
	return nil
}

// Input is the raw form as submitted by the process.
type Input struct {
	Nitrogen    FieldValue `json:"nitrogen"`
	Phosphorus  FieldValue `json:"phosphorus"`
	Potassium   FieldValue `json:"potassium"`
	Temperature FieldValue `json:"temperature"`
	Humidity    FieldValue `json:"humidity"`
	PH          FieldValue `json:"ph"`
	Rainfall    FieldValue `json:"rainfall"`
	Moisture    FieldValue `json:"moisture"`
	Crop        string     `json:"crop"`
}

// Form returns the input keyed by form field.
func (i *Input) Form() map[string]string {
	return map[string]string{
		models.FieldNitrogen:    string(i.Nitrogen),
		models.FieldPhosphorus:  string(i.Phosphorus),
		models.FieldPotassium:   string(i.Potassium),
		models.FieldTemperature: string(i.Temperature),
		models.FieldHumidity:    string(i.Humidity),
		models.FieldPH:          string(i.PH),
		models.FieldRainfall:    string(i.Rainfall),
		models.FieldMoisture:    string(i.Moisture),
		models.FieldCrop:        i.Crop,
	}
}

type Output struct {
	Fertilizer     string `json:"fertilizer"`
	PredictedClass int    `json:"predictedClass"`
	Label          string `json:"label,omitempty"`
}
