package fertilizer

import (
	"math"
	"strconv"
	"strings"

	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/models"
)

// Validator turns raw form input into a PredictRequest. It performs no I/O.
type Validator struct {
	known  *models.Metadata
	strict bool
}

type ValidatorOption func(*Validator)

// WithKnownCrops sets the crop set used when strict crop checking is on.
func WithKnownCrops(crops []string) ValidatorOption {
	return func(v *Validator) {
		v.known = &models.Metadata{Crops: crops}
	}
}

// WithStrictCrops rejects crops outside the known set. Without a known set
// the crop is accepted as is.
func WithStrictCrops(strict bool) ValidatorOption {
	return func(v *Validator) { v.strict = strict }
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks completeness first, then numeric coercion, then (when
// enabled) crop membership. A missing key counts as an empty field.
func (v *Validator) Validate(raw map[string]string) (*models.PredictRequest, error) {
	var empty []string
	for _, field := range models.FormFields {
		if strings.TrimSpace(raw[field]) == "" {
			empty = append(empty, field)
		}
	}
	if len(empty) > 0 {
		return nil, apperrors.NewIncompleteInputError(empty)
	}

	values := make(map[string]float64, len(models.NumericFields))
	var invalid []string
	for _, field := range models.NumericFields {
		n, err := parseNumber(raw[field])
		if err != nil {
			invalid = append(invalid, field)
			continue
		}
		values[field] = n
	}
	if len(invalid) > 0 {
		return nil, apperrors.NewInvalidNumberError(invalid)
	}

	crop := raw[models.FieldCrop]
	if v.strict && v.known != nil && !v.known.HasCrop(crop) {
		return nil, apperrors.NewUnknownCropError(crop)
	}

	return &models.PredictRequest{
		N:           values[models.FieldNitrogen],
		P:           values[models.FieldPhosphorus],
		K:           values[models.FieldPotassium],
		Temperature: values[models.FieldTemperature],
		Humidity:    values[models.FieldHumidity],
		PH:          values[models.FieldPH],
		Rainfall:    values[models.FieldRainfall],
		Moisture:    values[models.FieldMoisture],
		Crop:        crop,
	}, nil
}

func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, strconv.ErrRange
	}
	return n, nil
}
