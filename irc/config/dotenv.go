package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotenvFiles lists every file called name in the working directory and its
// parents, nearest first.
func DotenvFiles(name string) ([]string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	var files []string
	for {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files = append(files, path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return files, nil
		}
		dir = parent
	}
}

// LoadDotenv exports the variables from every .env file between the working
// directory and the filesystem root. Variables already in the environment
// win, then nearer files win over files further up.
func LoadDotenv() ([]string, error) {
	files, err := DotenvFiles(".env")
	if err != nil || len(files) == 0 {
		return nil, err
	}
	if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	return files, nil
}
