package redisq

import (
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

func marshalEnvelope(env domain.Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("op=queue.marshal_envelope: %w", err)
	}
	return string(b), nil
}

func unmarshalEnvelope(blob string) (domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return domain.Envelope{}, fmt.Errorf("op=queue.unmarshal_envelope: %w: %w", domain.ErrPayloadCorrupted, err)
	}
	if env.ID == "" {
		return domain.Envelope{}, fmt.Errorf("op=queue.unmarshal_envelope: missing id: %w", domain.ErrPayloadCorrupted)
	}
	return env, nil
}

func marshalVisibility(rec domain.VisibilityRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("op=queue.marshal_visibility: %w", err)
	}
	return string(b), nil
}

func unmarshalVisibility(blob string) (domain.VisibilityRecord, error) {
	var rec domain.VisibilityRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return domain.VisibilityRecord{}, fmt.Errorf("op=queue.unmarshal_visibility: %w: %w", domain.ErrPayloadCorrupted, err)
	}
	return rec, nil
}
