package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chatdesk-dev/chatdesk/internal/auth"
)

// SeedFile lists accounts created when the server starts
type SeedFile struct {
	Users []SeedUser `yaml:"users" validate:"dive"`
}

// SeedUser is one account of a seed file
type SeedUser struct {
	Name     string `yaml:"name" validate:"required"`
	Email    string `yaml:"email" validate:"required,email"`
	Password string `yaml:"password" validate:"required"`
	Role     string `yaml:"role" validate:"omitempty,role"`
}

// LoadSeedFile reads a YAML seed file
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// Seed creates the seed users that do not exist yet and returns how many
// were created. Existing emails are left untouched.
func (s *Server) Seed(seed *SeedFile) (int, error) {
	if err := s.validator.Struct(seed); err != nil {
		return 0, fmt.Errorf("invalid seed file: %w", err)
	}

	created := 0
	for _, u := range seed.Users {
		email := normalizeEmail(u.Email)
		taken, err := s.emailTaken(email, "")
		if err != nil {
			return created, err
		}
		if taken {
			s.logger.Debug().Str("email", email).Msg("Seed user exists, skipping")
			continue
		}

		role := u.Role
		if role == "" {
			role = auth.RoleUser
		}
		if _, err := s.createAccount(u.Name, email, u.Password, role); err != nil {
			return created, fmt.Errorf("failed to create seed user %s: %w", email, err)
		}
		created++
	}

	s.logger.Info().Int("created", created).Msg("Seed users applied")
	return created, nil
}
