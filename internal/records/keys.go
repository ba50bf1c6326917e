package records

import "strings"

const (
	keySeparator      = ":"
	predictionsPrefix = "predictions"
	profilePrefix     = "profile"

	// maxIDLength bounds user and prediction ids, keeping keys well under
	// storage.MaxKeySize
	maxIDLength = 256
)

// ValidateUserID rejects ids that would break prefix isolation.
// User "a" must never scan into user "a:b", so the separator is not allowed.
func ValidateUserID(userID string) error {
	if userID == "" {
		return malformed("user id is required")
	}
	if len(userID) > maxIDLength {
		return malformed("user id longer than %d bytes", maxIDLength)
	}
	if strings.ContainsAny(userID, keySeparator+"/") {
		return malformed("user id %q must not contain %q or %q", userID, keySeparator, "/")
	}
	return nil
}

// PredictionsPrefix returns the prefix grouping all predictions of a user
func PredictionsPrefix(userID string) string {
	return predictionsPrefix + keySeparator + userID + keySeparator
}

// PredictionKey returns the key of one prediction
func PredictionKey(userID, predictionID string) string {
	return PredictionsPrefix(userID) + predictionID
}

// ProfileKey returns the key of a user's profile
func ProfileKey(userID string) string {
	return profilePrefix + keySeparator + userID
}
