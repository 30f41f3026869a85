package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bdobrica/Alfred/common/environment"
	"github.com/bdobrica/Alfred/common/version"
	"github.com/bdobrica/Alfred/internal/alfred/app"
	"github.com/bdobrica/Alfred/internal/alfred/matrix"
	"github.com/bdobrica/Alfred/internal/alfred/oracle"
)

func main() {
	fmt.Printf("Alfred Personal Assistant\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	alfred, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Alfred: %v\n", err)
		os.Exit(1)
	}
	defer alfred.Stop()

	if err := alfred.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Alfred: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	owner, err := environment.RequiredString("ALFRED_OWNER")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("ORACLE_API_KEY")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./alfred.db"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
			Owner:       owner,
		},
		Oracle: oracle.Config{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("ORACLE_ENDPOINT", ""),
			Model:   environment.StringOr("ORACLE_MODEL", ""),
			Timeout: environment.DurationOr("ORACLE_TIMEOUT", 30*time.Second),
		},
		ConfidenceThreshold: floatEnv("ROUTE_CONFIDENCE_THRESHOLD", 0),
		ContextMaxTurns:     environment.IntOr("CONTEXT_MAX_TURNS", 0),
		ContextWindow:       environment.DurationOr("CONTEXT_WINDOW", 0),
		ConfirmTTL:          environment.DurationOr("CONFIRM_TTL", 0),
		OracleRateLimit:     environment.IntOr("ORACLE_RATE_LIMIT", 0),
		PersonaPath:         environment.StringOr("PERSONA_PATH", ""),
		HTTPAddr:            environment.StringOr("HTTP_ADDR", ""),
	}, nil
}

// floatEnv parses the named environment variable as a float64, returning
// defaultValue when unset or unparsable. Zero values defer to package-level
// defaults downstream.
func floatEnv(name string, defaultValue float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
