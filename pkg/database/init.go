package database

import (
	"fmt"
)

// InitDatabase opens the database once to run migrations.
func InitDatabase() error {
	_, err := NewGormManager()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	return nil
}
