package domain

import (
	"errors"
	"fmt"
)

var ErrDuplicateAPIID = errors.New("duplicate custom api id")

type CustomAPI struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Key      string `json:"key"`
}

// Settings is the flat user profile read once per connect. It has no version
// field; unknown JSON keys are ignored and missing ones keep their zero value.
type Settings struct {
	AIName         string      `json:"aiName"`
	UserName       string      `json:"userName"`
	Language       string      `json:"language"`
	VoiceEnrolled  bool        `json:"voiceEnrolled"`
	CharacterID    string      `json:"characterId"`
	VoiceID        string      `json:"voiceId"`
	CharacterImage string      `json:"characterImage"`
	CustomAPIs     []CustomAPI `json:"customApis"`
}

func DefaultSettings() Settings {
	return Settings{
		AIName:         "Sweetie",
		UserName:       "Boss",
		Language:       "Bengali",
		VoiceEnrolled:  false,
		CharacterID:    "c1",
		VoiceID:        "Kore",
		CharacterImage: "https://images.unsplash.com/photo-1620332372374-f108c53d2e03?q=100&w=800&auto=format&fit=crop",
		CustomAPIs:     []CustomAPI{},
	}
}

func (s Settings) Validate() error {
	seen := make(map[string]struct{}, len(s.CustomAPIs))
	for _, api := range s.CustomAPIs {
		if _, ok := seen[api.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateAPIID, api.ID)
		}
		seen[api.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy so callers can hand out snapshots.
func (s Settings) Clone() Settings {
	out := s
	out.CustomAPIs = append([]CustomAPI(nil), s.CustomAPIs...)
	return out
}

func (s Settings) Platforms() []string {
	platforms := make([]string, 0, len(s.CustomAPIs))
	for _, api := range s.CustomAPIs {
		platforms = append(platforms, api.Platform)
	}
	return platforms
}
