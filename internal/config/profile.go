package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/amishk599/autoapply/internal/model"
)

// LoadProfile reads the candidate profile YAML at path. Bullet ids must be
// unique across the whole profile since tailored resumes cite them.
func LoadProfile(path string) (*model.CandidateProfile, error) {
	if path == "" {
		return nil, fmt.Errorf("candidate.profile is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p model.CandidateProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	if p.Name == "" {
		return nil, fmt.Errorf("profile: name is required")
	}
	seen := make(map[string]bool)
	for i, e := range p.Experience {
		for j, b := range e.Bullets {
			if b.ID == "" {
				return nil, fmt.Errorf("profile: experience[%d].bullets[%d]: id is required", i, j)
			}
			if seen[b.ID] {
				return nil, fmt.Errorf("profile: duplicate bullet id %q", b.ID)
			}
			seen[b.ID] = true
		}
	}
	return &p, nil
}
