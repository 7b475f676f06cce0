package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/verstore/verstore/internal/db"
	"github.com/verstore/verstore/internal/domain"
)

// FieldConfig mirrors one versioned column in the config file.
type FieldConfig struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Length    int    `mapstructure:"length"`
	Precision int    `mapstructure:"precision"`
	Scale     int    `mapstructure:"scale"`
	Default   string `mapstructure:"default"`
	Required  bool   `mapstructure:"required"`
}

// TypeConfig mirrors one versioned type in the config file.
type TypeConfig struct {
	Name                string        `mapstructure:"name"`
	Table               string        `mapstructure:"table"`
	HistoryTable        string        `mapstructure:"history_table"`
	ForeignKey          string        `mapstructure:"foreign_key"`
	VersionColumn       string        `mapstructure:"version_column"`
	Discriminator       string        `mapstructure:"discriminator"`
	VersionedTypeColumn string        `mapstructure:"versioned_type_column"`
	Locking             bool          `mapstructure:"locking"`
	Fields              []FieldConfig `mapstructure:"fields"`
	Exclude             []string      `mapstructure:"exclude"`
	Watch               []string      `mapstructure:"watch"`
	Limit               int           `mapstructure:"limit"`
}

// Definition converts the configured type into a domain definition. Watch and
// Limit are behavioral and stay outside the definition.
func (tc TypeConfig) Definition() (domain.Definition, error) {
	fields := make([]domain.FieldDefinition, 0, len(tc.Fields))
	for _, fc := range tc.Fields {
		fieldType, err := domain.ParseFieldType(fc.Type)
		if err != nil {
			return domain.Definition{}, fmt.Errorf("type %q field %q: %w", tc.Name, fc.Name, err)
		}
		fields = append(fields, domain.FieldDefinition{
			Name:      fc.Name,
			Type:      fieldType,
			Length:    fc.Length,
			Precision: fc.Precision,
			Scale:     fc.Scale,
			Default:   fc.Default,
			Required:  fc.Required,
		})
	}
	return domain.Definition{
		Name:                tc.Name,
		Table:               tc.Table,
		HistoryTable:        tc.HistoryTable,
		ForeignKey:          tc.ForeignKey,
		VersionColumn:       tc.VersionColumn,
		Discriminator:       tc.Discriminator,
		VersionedTypeColumn: tc.VersionedTypeColumn,
		Locking:             tc.Locking,
		Fields:              fields,
		Exclude:             tc.Exclude,
	}, nil
}

// ExportConfig mirrors the export section of the config file.
type ExportConfig struct {
	Directory string `mapstructure:"directory"`
}

// AppConfig is the full application configuration.
type AppConfig struct {
	Database       db.Config
	MigrationsPath string
	Types          []TypeConfig
	Export         ExportConfig
}

// TypeByName finds a configured type by name or table.
func (c AppConfig) TypeByName(name string) (TypeConfig, error) {
	for _, tc := range c.Types {
		if tc.Name == name || (tc.Name == "" && tc.Table == name) || tc.Table == name {
			return tc, nil
		}
	}
	return TypeConfig{}, fmt.Errorf("no configured type named %q", name)
}

// Load reads config.yaml from configPath, falling back to defaults plus
// environment overrides when the file is absent.
func Load(configPath string) (AppConfig, error) {
	cfg := AppConfig{
		Database:       db.DefaultConfig(),
		MigrationsPath: "migrations",
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("VERSTORE")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("export.directory")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("migrations_path") {
		cfg.MigrationsPath = v.GetString("migrations_path")
	}
	if v.IsSet("export.directory") {
		cfg.Export.Directory = v.GetString("export.directory")
	}

	if err := v.UnmarshalKey("types", &cfg.Types); err != nil {
		return AppConfig{}, fmt.Errorf("parse types section: %w", err)
	}
	for _, tc := range cfg.Types {
		if _, err := tc.Definition(); err != nil {
			return AppConfig{}, err
		}
	}

	return cfg, nil
}
