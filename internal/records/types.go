package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedInput marks request data the service refuses to store
var ErrMalformedInput = errors.New("malformed input")

// Gender of the insured person
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Smoker status
type Smoker string

const (
	SmokerYes Smoker = "yes"
	SmokerNo  Smoker = "no"
)

// Region of residence
type Region string

const (
	RegionNorthwest Region = "northwest"
	RegionNortheast Region = "northeast"
	RegionSouthwest Region = "southwest"
	RegionSoutheast Region = "southeast"
)

// PredictionInputs are the form fields a prediction was computed from
type PredictionInputs struct {
	Age      float64 `json:"age"`
	BMI      float64 `json:"bmi"`
	Children int     `json:"children"`
	Gender   Gender  `json:"gender"`
	Smoker   Smoker  `json:"smoker"`
	Region   Region  `json:"region"`
}

// PredictionRecord is the typed view of one saved prediction.
// Stored under predictions:{userId}:{id} as the document the client sent.
type PredictionRecord struct {
	ID             string           `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	Inputs         PredictionInputs `json:"inputs"`
	PredictedPrice float64          `json:"predictedPrice"`
}

// ProfileRecord is the typed view of a user's single profile.
// Stored under profile:{userId} as the document the client sent.
type ProfileRecord struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Avatar string `json:"avatar,omitempty"`
}

// Validate checks the fields the key layout and the client depend on
func (p PredictionRecord) Validate() error {
	if p.ID == "" {
		return malformed("prediction id is required")
	}
	if len(p.ID) > maxIDLength {
		return malformed("prediction id longer than %d bytes", maxIDLength)
	}
	if strings.ContainsAny(p.ID, keySeparator+"/") {
		return malformed("prediction id %q must not contain %q or %q", p.ID, keySeparator, "/")
	}
	in := p.Inputs
	if in.Age < 0 || in.BMI < 0 || in.Children < 0 {
		return malformed("age, bmi and children must not be negative")
	}
	switch in.Gender {
	case GenderMale, GenderFemale:
	default:
		return malformed("gender must be %q or %q, got %q", GenderMale, GenderFemale, in.Gender)
	}
	switch in.Smoker {
	case SmokerYes, SmokerNo:
	default:
		return malformed("smoker must be %q or %q, got %q", SmokerYes, SmokerNo, in.Smoker)
	}
	switch in.Region {
	case RegionNorthwest, RegionNortheast, RegionSouthwest, RegionSoutheast:
	default:
		return malformed("unknown region %q", in.Region)
	}
	return nil
}

// ParsePrediction decodes and validates a prediction document.
// Fields not listed in PredictionRecord are allowed and ignored.
func ParsePrediction(doc json.RawMessage) (PredictionRecord, error) {
	var rec PredictionRecord
	if err := decodeObject(doc, &rec, "prediction"); err != nil {
		return PredictionRecord{}, err
	}
	if err := rec.Validate(); err != nil {
		return PredictionRecord{}, err
	}
	return rec, nil
}

// ParseProfile decodes a profile document, checking only the field types
func ParseProfile(doc json.RawMessage) (ProfileRecord, error) {
	var profile ProfileRecord
	if err := decodeObject(doc, &profile, "profile"); err != nil {
		return ProfileRecord{}, err
	}
	return profile, nil
}

func decodeObject(doc json.RawMessage, dst any, what string) error {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return malformed("%s must be a JSON object", what)
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return malformed("invalid %s: %v", what, err)
	}
	return nil
}

// compact strips insignificant whitespace so stored documents have one form
func compact(doc json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	return buf.Bytes(), nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
