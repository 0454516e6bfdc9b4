// Package settings holds the runtime-tunable detector parameters the
// dashboard exposes. Unlike the server configuration (internal/config, read
// once at startup), these change while the server runs and are persisted
// through the store so they survive restarts.
package settings

import (
	"fmt"
	"regexp"
)

var resolutionRe = regexp.MustCompile(`^\d{2,5}x\d{2,5}$`)

// Settings are the detector parameters a start request is built from.
type Settings struct {
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	AnalysisInterval    int      `json:"analysis_interval"` // seconds between analyses
	Resolution          string   `json:"resolution"`
	EnableAudio         bool     `json:"enable_audio"`
	SaveEvents          bool     `json:"save_events"`
	WebhookURL          string   `json:"webhook_url"`
	ModelPath           string   `json:"model_path"`
	ObjectClasses       []string `json:"object_classes"`
}

// Defaults returns the detector settings used until an operator changes them.
func Defaults() Settings {
	return Settings{
		ConfidenceThreshold: 0.2,
		AnalysisInterval:    10,
		Resolution:          "1640x1232",
		EnableAudio:         true,
		SaveEvents:          true,
		ModelPath:           "best_ncnn_model",
		ObjectClasses: []string{
			"knife", "gun", "cigarette", "vape", "syringe",
			"pills", "alcohol", "phone", "mask", "person",
		},
	}
}

// Validate checks the operator-facing ranges.
func (s Settings) Validate() error {
	if s.ConfidenceThreshold < 0.1 || s.ConfidenceThreshold > 0.9 {
		return fmt.Errorf("confidence_threshold must be between 0.1 and 0.9, got %g", s.ConfidenceThreshold)
	}
	if s.AnalysisInterval < 1 || s.AnalysisInterval > 60 {
		return fmt.Errorf("analysis_interval must be between 1 and 60 seconds, got %d", s.AnalysisInterval)
	}
	if !resolutionRe.MatchString(s.Resolution) {
		return fmt.Errorf("resolution must look like WIDTHxHEIGHT, got %q", s.Resolution)
	}
	if s.ModelPath == "" {
		return fmt.Errorf("model_path must not be empty")
	}
	return nil
}

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	ConfidenceThreshold *float64  `json:"confidence_threshold"`
	AnalysisInterval    *int      `json:"analysis_interval"`
	Resolution          *string   `json:"resolution"`
	EnableAudio         *bool     `json:"enable_audio"`
	SaveEvents          *bool     `json:"save_events"`
	WebhookURL          *string   `json:"webhook_url"`
	ModelPath           *string   `json:"model_path"`
	ObjectClasses       *[]string `json:"object_classes"`
}

// Merge applies the patch on top of s and returns the result. The caller
// validates the merged settings before persisting them.
func (s Settings) Merge(p Patch) Settings {
	if p.ConfidenceThreshold != nil {
		s.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.AnalysisInterval != nil {
		s.AnalysisInterval = *p.AnalysisInterval
	}
	if p.Resolution != nil {
		s.Resolution = *p.Resolution
	}
	if p.EnableAudio != nil {
		s.EnableAudio = *p.EnableAudio
	}
	if p.SaveEvents != nil {
		s.SaveEvents = *p.SaveEvents
	}
	if p.WebhookURL != nil {
		s.WebhookURL = *p.WebhookURL
	}
	if p.ModelPath != nil {
		s.ModelPath = *p.ModelPath
	}
	if p.ObjectClasses != nil {
		s.ObjectClasses = *p.ObjectClasses
	}
	return s
}
