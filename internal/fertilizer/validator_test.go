package fertilizer

import (
	"testing"

	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() map[string]string {
	return map[string]string{
		"nitrogen":    "40",
		"phosphorus":  "30",
		"potassium":   "20",
		"temperature": "26.5",
		"humidity":    "60",
		"ph":          "6.5",
		"rainfall":    "120",
		"moisture":    "35",
		"crop":        "Maize",
	}
}

func formWith(field, value string) map[string]string {
	form := validForm()
	form[field] = value
	return form
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]string
		opts      []ValidatorOption
		errorCode apperrors.ErrorCode
		errorMsg  string
		details   string
	}{
		{
			name:  "valid form",
			input: validForm(),
		},
		{
			name:      "empty numeric field",
			input:     formWith("humidity", ""),
			errorCode: apperrors.ErrCodeIncompleteInput,
			errorMsg:  "Please fill in all fields",
			details:   "empty fields: humidity",
		},
		{
			name:      "empty crop",
			input:     formWith("crop", ""),
			errorCode: apperrors.ErrCodeIncompleteInput,
		},
		{
			name:      "whitespace only",
			input:     formWith("ph", "   "),
			errorCode: apperrors.ErrCodeIncompleteInput,
		},
		{
			name:      "missing keys count as empty",
			input:     map[string]string{"nitrogen": "1", "crop": "Maize"},
			errorCode: apperrors.ErrCodeIncompleteInput,
			details:   "empty fields: phosphorus, potassium, temperature, humidity, ph, rainfall, moisture",
		},
		{
			name:      "completeness is checked before numbers",
			input:     func() map[string]string { f := formWith("nitrogen", "abc"); f["moisture"] = ""; return f }(),
			errorCode: apperrors.ErrCodeIncompleteInput,
		},
		{
			name:      "non numeric",
			input:     formWith("nitrogen", "abc"),
			errorCode: apperrors.ErrCodeInvalidNumber,
			errorMsg:  "Please enter valid numbers in all numeric fields",
			details:   "invalid numeric fields: nitrogen",
		},
		{
			name:      "NaN",
			input:     formWith("rainfall", "NaN"),
			errorCode: apperrors.ErrCodeInvalidNumber,
		},
		{
			name:      "infinity",
			input:     formWith("temperature", "Inf"),
			errorCode: apperrors.ErrCodeInvalidNumber,
		},
		{
			name:      "overflow",
			input:     formWith("potassium", "1e400"),
			errorCode: apperrors.ErrCodeInvalidNumber,
		},
		{
			name:  "unknown crop passes by default",
			input: formWith("crop", "Cassava"),
			opts:  []ValidatorOption{WithKnownCrops([]string{"Maize"})},
		},
		{
			name:      "unknown crop rejected when strict",
			input:     formWith("crop", "Cassava"),
			opts:      []ValidatorOption{WithKnownCrops([]string{"Maize"}), WithStrictCrops(true)},
			errorCode: apperrors.ErrCodeUnknownCrop,
		},
		{
			name:  "known crop accepted when strict",
			input: formWith("crop", "Maize"),
			opts:  []ValidatorOption{WithKnownCrops([]string{"Wheat", "Maize"}), WithStrictCrops(true)},
		},
		{
			name:  "strict without known crops accepts",
			input: formWith("crop", "Cassava"),
			opts:  []ValidatorOption{WithStrictCrops(true)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewValidator(tt.opts...).Validate(tt.input)

			if tt.errorCode != "" {
				require.Error(t, err)
				assert.Nil(t, req)
				assert.Equal(t, tt.errorCode, apperrors.CodeOf(err))
				assert.True(t, apperrors.IsValidation(err))
				if tt.errorMsg != "" {
					assert.Equal(t, tt.errorMsg, apperrors.UserMessage(err))
				}
				if tt.details != "" {
					assert.Equal(t, tt.details, apperrors.Normalize(err).Details)
				}
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, req)
		})
	}
}

func TestValidator_BuildsRequest(t *testing.T) {
	form := validForm()
	form["nitrogen"] = " 42 "
	form["ph"] = "7"
	form["crop"] = "Ground Nuts"

	req, err := NewValidator().Validate(form)
	require.NoError(t, err)

	assert.Equal(t, &models.PredictRequest{
		N:           42,
		P:           30,
		K:           20,
		Temperature: 26.5,
		Humidity:    60,
		PH:          7,
		Rainfall:    120,
		Moisture:    35,
		Crop:        "Ground Nuts",
	}, req)
}
