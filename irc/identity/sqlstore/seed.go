package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedUser is one account entry in a seed file
type SeedUser struct {
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	DisplayName string   `yaml:"display_name"`
	HostLabel   string   `yaml:"host_label"`
	Groups      []string `yaml:"groups,omitempty"`
}

// Seed is the YAML document accepted by ImportSeed
type Seed struct {
	Groups []string   `yaml:"groups,omitempty"`
	Users  []SeedUser `yaml:"users"`
}

// SeedResult counts what an import changed
type SeedResult struct {
	Created int
	Updated int
}

// LoadSeedFile reads a YAML seed file and applies it
func (s *Store) LoadSeedFile(ctx context.Context, path string) (SeedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedResult{}, fmt.Errorf("read seed file: %w", err)
	}
	return s.ImportSeed(ctx, data)
}

// ImportSeed creates the users and groups described by data. Existing users
// keep their password and only gain missing group memberships, so a seed file
// can be applied on every start.
func (s *Store) ImportSeed(ctx context.Context, data []byte) (SeedResult, error) {
	var seed Seed
	var res SeedResult
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return res, fmt.Errorf("parse seed file: %w", err)
	}

	if len(seed.Groups) > 0 {
		if _, err := ensureGroups(s.db.WithContext(ctx), seed.Groups); err != nil {
			return res, err
		}
	}

	for _, su := range seed.Users {
		_, err := s.CreateUser(ctx, NewUser{
			Username:    su.Username,
			Password:    su.Password,
			DisplayName: su.DisplayName,
			HostLabel:   su.HostLabel,
			Groups:      su.Groups,
		})
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, ErrUserExists):
			if err := s.AddToGroups(ctx, su.Username, su.Groups...); err != nil {
				return res, fmt.Errorf("seed %s: %w", su.Username, err)
			}
			res.Updated++
		default:
			return res, fmt.Errorf("seed %s: %w", su.Username, err)
		}
	}

	s.logger.Info("imported identity seed", "created", res.Created, "updated", res.Updated)
	return res, nil
}
