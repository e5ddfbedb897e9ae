// Package config holds the audit run settings, loaded from an optional YAML
// file and overridden by command-line flags.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultRulesFile = "compliance_rules/linux_cis_L1.yaml"
	DefaultTarget    = "localhost"
	DefaultUser      = "root"
	DefaultPort      = 22
	DefaultTimeout   = 10 * time.Second
)

// Settings configures one audit run. Fields tagged with flag are overridden by
// the command-line flag of that name.
type Settings struct {
	Target TargetSettings `yaml:"target"`
	Rules  string         `yaml:"rules" flag:"rules" validate:"required"`
	IDs    []string       `yaml:"ids,omitempty" flag:"id"`
	// Timeout bounds each check.
	Timeout time.Duration  `yaml:"timeout" flag:"timeout" validate:"gt=0"`
	Output  OutputSettings `yaml:"output"`
	Mongo   MongoSettings  `yaml:"mongo"`
	Kafka   KafkaSettings  `yaml:"kafka"`
	Log     LogSettings    `yaml:"log"`
	Watch   bool           `yaml:"watch" flag:"watch"`
}

type TargetSettings struct {
	Host           string `yaml:"host" flag:"target"`
	Port           int    `yaml:"port" flag:"port" validate:"min=1,max=65535"`
	User           string `yaml:"user" flag:"user"`
	Password       string `yaml:"password,omitempty" flag:"password"`
	KeyFile        string `yaml:"key_file,omitempty" flag:"key-file"`
	KeyPassphrase  string `yaml:"key_passphrase,omitempty" flag:"key-passphrase"`
	HostKeyPolicy  string `yaml:"host_key_policy,omitempty" flag:"host-key-policy" validate:"omitempty,oneof=auto-accept tofu strict"`
	KnownHostsFile string `yaml:"known_hosts,omitempty" flag:"known-hosts"`
	// ConnectRetries is the number of extra dial attempts after a network error.
	ConnectRetries int `yaml:"connect_retries,omitempty" flag:"connect-retries" validate:"min=0,max=10"`
}

type OutputSettings struct {
	Format string `yaml:"format" flag:"output-format" validate:"oneof=text html json"`
	File   string `yaml:"file,omitempty" flag:"output-file"`
	// NoOverwrite refuses to replace an existing output file.
	NoOverwrite bool `yaml:"no_overwrite,omitempty" flag:"no-overwrite"`
}

type MongoSettings struct {
	URI        string `yaml:"uri,omitempty" flag:"mongo-uri"`
	DB         string `yaml:"db,omitempty" flag:"mongo-db" validate:"required_with=URI"`
	Collection string `yaml:"collection,omitempty" flag:"mongo-collection" validate:"required_with=URI"`
}

type KafkaSettings struct {
	Brokers []string `yaml:"brokers,omitempty" flag:"kafka-brokers"`
	Topic   string   `yaml:"topic,omitempty" flag:"kafka-topic" validate:"required_with=Brokers"`
}

type LogSettings struct {
	Debug  bool   `yaml:"debug" flag:"debug"`
	Format string `yaml:"format" flag:"log-format" validate:"omitempty,oneof=json console"`
}

var validate = validator.New()

func Defaults() Settings {
	return Settings{
		Target: TargetSettings{
			Host: DefaultTarget,
			Port: DefaultPort,
			User: DefaultUser,
		},
		Rules:   DefaultRulesFile,
		Timeout: DefaultTimeout,
		Output:  OutputSettings{Format: "text"},
		Mongo:   MongoSettings{DB: "secuaudit", Collection: "reports"},
		Kafka:   KafkaSettings{Topic: "audit-results"},
		Log:     LogSettings{Format: "console"},
	}
}

func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// LoadSettings reads the YAML file at path over the defaults and validates the result.
func LoadSettings(path string) (Settings, error) {
	s, err := LoadFrom(NewFileStore(path))
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func LoadFrom(store Store) (Settings, error) {
	s := Defaults()
	if err := store.Load(&s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SaveTo validates s and writes it to store.
func SaveTo(store Store, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return store.Save(&s)
}

// Overlay copies every field of src whose flag was set on the command line into dst.
func Overlay(dst, src *Settings, changed func(flag string) bool) {
	overlay(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem(), changed)
}

func overlay(dst, src reflect.Value, changed func(string) bool) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, tagged := f.Tag.Lookup("flag")
		switch {
		case tagged && changed(name):
			dst.Field(i).Set(src.Field(i))
		case !tagged && f.Type.Kind() == reflect.Struct:
			overlay(dst.Field(i), src.Field(i), changed)
		}
	}
}
