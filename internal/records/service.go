package records

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/premia/internal/storage"
)

// Service maps the prediction and profile namespaces onto a key-value store.
// It holds no state of its own; every call is independent.
type Service struct {
	store storage.Store
	log   logrus.FieldLogger
}

// NewService creates a record service on top of store
func NewService(store storage.Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log}
}

// ListPredictions returns every prediction document of a user in key order,
// exactly as saved. A user without predictions gets an empty, non-nil slice.
func (s *Service) ListPredictions(ctx context.Context, userID string) ([]json.RawMessage, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	log := s.log.WithField("user_id", userID)
	log.Debug("fetching predictions")

	values, err := s.store.GetByPrefix(ctx, PredictionsPrefix(userID))
	if err != nil {
		log.WithError(err).Error("fetch predictions failed")
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(values))
	for _, value := range values {
		var rec PredictionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			log.WithError(err).Error("stored prediction is corrupt")
			return nil, fmt.Errorf("decode prediction for %q: %w", userID, err)
		}
		out = append(out, value)
	}
	log.WithField("count", len(out)).Debug("found predictions")
	return out, nil
}

// SavePrediction validates doc and stores it under its id, replacing any
// prediction with the same id. The document is kept as sent, unknown fields
// included; only whitespace is normalized.
func (s *Service) SavePrediction(ctx context.Context, userID string, doc json.RawMessage) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	rec, err := ParsePrediction(doc)
	if err != nil {
		return err
	}
	value, err := compact(doc)
	if err != nil {
		return err
	}
	key := PredictionKey(userID, rec.ID)
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "key": key})

	if err := s.store.Set(ctx, key, value); err != nil {
		log.WithError(err).Error("save prediction failed")
		return err
	}
	log.Info("saved prediction")
	return nil
}

// ClearPredictions deletes the predictions visible to a prefix scan and returns
// how many were removed. A prediction saved after the scan is not touched.
func (s *Service) ClearPredictions(ctx context.Context, userID string) (int, error) {
	if err := ValidateUserID(userID); err != nil {
		return 0, err
	}
	log := s.log.WithField("user_id", userID)

	entries, err := s.store.ScanPrefix(ctx, PredictionsPrefix(userID))
	if err != nil {
		log.WithError(err).Error("scan predictions failed")
		return 0, err
	}
	if len(entries) == 0 {
		log.Debug("no predictions to clear")
		return 0, nil
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	if err := s.store.MDel(ctx, keys); err != nil {
		log.WithError(err).Error("delete predictions failed")
		return 0, err
	}
	log.WithField("count", len(keys)).Info("cleared predictions")
	return len(keys), nil
}

// GetProfile returns the stored profile document, or nil if the user never
// saved one
func (s *Service) GetProfile(ctx context.Context, userID string) (json.RawMessage, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	log := s.log.WithField("user_id", userID)

	value, found, err := s.store.Get(ctx, ProfileKey(userID))
	if err != nil {
		log.WithError(err).Error("fetch profile failed")
		return nil, err
	}
	if !found {
		log.Debug("profile not found")
		return nil, nil
	}

	var profile ProfileRecord
	if err := json.Unmarshal(value, &profile); err != nil {
		log.WithError(err).Error("stored profile is corrupt")
		return nil, fmt.Errorf("decode profile for %q: %w", userID, err)
	}
	return value, nil
}

// SetProfile replaces the whole profile document; fields missing from doc are
// not kept
func (s *Service) SetProfile(ctx context.Context, userID string, doc json.RawMessage) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if _, err := ParseProfile(doc); err != nil {
		return err
	}
	value, err := compact(doc)
	if err != nil {
		return err
	}
	log := s.log.WithField("user_id", userID)

	if err := s.store.Set(ctx, ProfileKey(userID), value); err != nil {
		log.WithError(err).Error("update profile failed")
		return err
	}
	log.Info("updated profile")
	return nil
}
