package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Rrogntudju/odieux/internal/config"
	"github.com/Rrogntudju/odieux/pkg/bytesize"
	"github.com/Rrogntudju/odieux/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing odieux configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows all available configuration options with their current values:
defaults, overridden by any config file found and by environment variables.
You can redirect this output to a file to create a configuration template:

  odieux config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .odieux.yaml, /etc/odieux/config.yaml)
  - Environment variables (ODIEUX_SERVER_PORT, ODIEUX_PIPELINE_LIVE_ORIGINS, etc.)
  - Command-line flags (for some options)

Environment variables use the ODIEUX_ prefix and underscores for nesting.
Example: server.port -> ODIEUX_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get mapstructure tag, else yaml tag, else the field name as is
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		// Handle different types
		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.ByteSize:
			result[key] = v.String()
		case int64:
			// Check if this looks like a byte size (field name contains "size")
			if contains(key, "size", "bytes") {
				result[key] = bytesize.Format(bytesize.Size(v))
			} else {
				result[key] = v
			}
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func contains(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i <= len(s)-len(sub); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Load config: defaults, overridden by any config file found and by environment variables
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Convert to map with human-readable values
	cfgMap := toMap(cfg)

	// Marshal to YAML
	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# odieux Configuration File")
	fmt.Println("# =========================")
	fmt.Println("#")
	fmt.Println("# Values shown below are the effective configuration: defaults,")
	fmt.Println("# overridden by any config file found and by environment variables.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   ODIEUX_SERVER_HOST, ODIEUX_SERVER_PORT")
	fmt.Println("#   ODIEUX_FETCHER_TIMEOUT, ODIEUX_FETCHER_RETRY_ATTEMPTS")
	fmt.Println("#   ODIEUX_PIPELINE_CHANNEL_CAPACITY, ODIEUX_PIPELINE_LIVE_ORIGINS")
	fmt.Println("#   ODIEUX_PLAYER_VOLUME_DIVISOR")
	fmt.Println("#   ODIEUX_LOGGING_LEVEL, ODIEUX_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
