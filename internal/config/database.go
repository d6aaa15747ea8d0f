package config

import (
	"os"

	"github.com/joho/godotenv"
)

// DatabaseConfig holds the MySQL connection settings.
type DatabaseConfig struct {
	User string // DB_USER
	Pass string // DB_PASS (empty allowed)
	Host string // DB_HOST
	Port string // DB_PORT
	Name string // DB_NAME
}

// LoadDatabase reads the DB_* variables on their own, for tools such as the
// migrator that need nothing else. Missing required values are fatal.
func LoadDatabase() DatabaseConfig {
	_ = godotenv.Load()
	return DatabaseConfig{
		User: must("DB_USER"),
		Pass: os.Getenv("DB_PASS"),
		Host: must("DB_HOST"),
		Port: must("DB_PORT"),
		Name: must("DB_NAME"),
	}
}
