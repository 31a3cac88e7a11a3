package database

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// Keyring service name for database credentials
	DatabaseKeyringService = "crosslink-database"
	DatabasePasswordKey    = "postgres-password"
)

// GetDatabasePassword retrieves the database password from the system
// keyring. CROSSLINK_DATABASE_PASSWORD takes precedence when set, so
// containerized deployments without a keyring keep working.
func GetDatabasePassword() (string, error) {
	if password := os.Getenv("CROSSLINK_DATABASE_PASSWORD"); password != "" {
		return password, nil
	}

	password, err := keyring.Get(DatabaseKeyringService, DatabasePasswordKey)
	if err != nil {
		return "", fmt.Errorf("database password not found in keyring: %w", err)
	}
	return password, nil
}

// SetDatabasePassword stores the database password in the system keyring
func SetDatabasePassword(password string) error {
	if err := keyring.Set(DatabaseKeyringService, DatabasePasswordKey, password); err != nil {
		return fmt.Errorf("failed to store database password in keyring: %w", err)
	}
	return nil
}

// DeleteDatabasePassword removes the stored database password
func DeleteDatabasePassword() error {
	if err := keyring.Delete(DatabaseKeyringService, DatabasePasswordKey); err != nil {
		return fmt.Errorf("failed to remove database password from keyring: %w", err)
	}
	return nil
}
