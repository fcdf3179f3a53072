package prediction

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON decodes a result and resolves the raw_details tagged union
// into the concrete detail type for the result's prediction_type. Results
// round-trip through JSON caches and the API unchanged.
func (r *PredictionResult) UnmarshalJSON(data []byte) error {
	type alias PredictionResult
	aux := struct {
		*alias
		RawDetails json.RawMessage `json:"raw_details,omitempty"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.RawDetails) == 0 || string(aux.RawDetails) == "null" {
		return nil
	}

	details, err := decodeDetails(r.PredictionType, aux.RawDetails)
	if err != nil {
		return err
	}
	r.RawDetails = details
	return nil
}

func decodeDetails(predType PredictionType, data []byte) (Details, error) {
	var details Details
	switch predType {
	case TypeLifespan:
		details = &LifespanDetails{}
	case TypeAnomaly:
		details = &AnomalyDetails{}
	case TypeUsagePatterns:
		details = &UsageDetails{}
	case TypeMultiFactor:
		details = &MultiFactorDetails{}
	case TypeDescaling:
		details = &DescalingDetails{}
	default:
		return nil, fmt.Errorf("no detail type for prediction type %q", predType)
	}
	if err := json.Unmarshal(data, details); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", predType, err)
	}
	return details, nil
}
