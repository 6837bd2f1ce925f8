package cmd

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loquat-fw/loquat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows every available configuration option with its default value.
Redirect this output to a file to create a starting config.yaml:

  loquat config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, ./config/config.yaml, /etc/loquat, $HOME/.loquat)
  - Environment variables (LOQUAT_WEB_PORT, LOQUAT_LOGGING_LEVEL, etc.)
  - Command-line flags (--log-level, --log-format)

Environment variables use the LOQUAT_ prefix and underscores for nesting.
Example: web.port -> LOQUAT_WEB_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map keyed by mapstructure tag, rendering
// config.Duration fields as their human-readable string form rather than
// a raw nanosecond count.
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

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case config.Duration:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = v
			}
		}
	}
	return result
}

func runConfigDump(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load("", nil)
	if err != nil {
		return fmt.Errorf("loading defaults: %w", err)
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# loquat configuration file")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d, 2w")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the LOQUAT_ prefix, e.g.")
	fmt.Println("# LOQUAT_WEB_PORT, LOQUAT_LOGGING_LEVEL, LOQUAT_PLUGINS_DIRECTORY.")
	fmt.Println("#")
	fmt.Println()
	fmt.Print(string(yamlData))

	return nil
}
