package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file.
// Variables already set in the environment are not overwritten.
func LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoadEnvOptional loads the .env file if it exists.
// A missing file is not an error.
func LoadEnvOptional(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	return LoadEnv(path)
}
