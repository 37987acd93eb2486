package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MrBE4R/gitlab-ldap-sync/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// GITLAB_LDAP_SYNC_GITLAB_PRIVATE_TOKEN.
const EnvPrefix = "GITLAB_LDAP_SYNC"

// DefaultSyncMarker is the value the group attribute must hold for a group to
// be selected in attribute mode.
const DefaultSyncMarker = "gitlab_sync"

type LDAPConfiguration struct {
	URL                 string `mapstructure:"url"`
	BindDN              string `mapstructure:"bind_dn"`
	Password            string `mapstructure:"password"`
	GroupsBaseDN        string `mapstructure:"groups_base_dn"`
	UsersBaseDN         string `mapstructure:"users_base_dn"`
	GroupAttribute      string `mapstructure:"group_attribute"`
	GroupAttributeValue string `mapstructure:"group_attribute_value"`
	GroupPrefix         string `mapstructure:"group_prefix"`
	UserFilter          string `mapstructure:"user_filter"`
	StartTLS            bool   `mapstructure:"start_tls"`
	SSLVerify           bool   `mapstructure:"ssl_verify"`
	PageSize            uint32 `mapstructure:"page_size"`
}

type GitLabConfiguration struct {
	API               string        `mapstructure:"api"`
	PrivateToken      string        `mapstructure:"private_token"`
	OAuthToken        string        `mapstructure:"oauth_token"`
	SSLVerify         bool          `mapstructure:"ssl_verify"`
	GroupVisibility   string        `mapstructure:"group_visibility"`
	AddDescription    bool          `mapstructure:"add_description"`
	CreateUser        bool          `mapstructure:"create_user"`
	LDAPProvider      string        `mapstructure:"ldap_provider"`
	AccessLevel       string        `mapstructure:"access_level"`
	PerPage           int           `mapstructure:"per_page"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type RetryConfiguration struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type LogConfiguration struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type JournalConfiguration struct {
	DSN string `mapstructure:"dsn"`
}

type ScheduleConfiguration struct {
	Cron string `mapstructure:"cron"`
}

// Configuration mirrors the JSON configuration file.
type Configuration struct {
	LDAP         LDAPConfiguration     `mapstructure:"ldap"`
	GitLab       GitLabConfiguration   `mapstructure:"gitlab"`
	Retry        RetryConfiguration    `mapstructure:"retry"`
	Log          LogConfiguration      `mapstructure:"log"`
	Journal      JournalConfiguration  `mapstructure:"journal"`
	Schedule     ScheduleConfiguration `mapstructure:"schedule"`
	ExecutedFrom string                `mapstructure:"executed_from"`
}

// Error is a fatal configuration problem.
type Error struct {
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
	}
	return "configuration error: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var defaults = map[string]any{
	"ldap.url":                     "",
	"ldap.bind_dn":                 "",
	"ldap.password":                "",
	"ldap.groups_base_dn":          "",
	"ldap.users_base_dn":           "",
	"ldap.group_attribute":         "",
	"ldap.group_attribute_value":   DefaultSyncMarker,
	"ldap.group_prefix":            "",
	"ldap.user_filter":             "",
	"ldap.start_tls":               false,
	"ldap.ssl_verify":              true,
	"ldap.page_size":               500,
	"gitlab.api":                   "",
	"gitlab.private_token":         "",
	"gitlab.oauth_token":           "",
	"gitlab.ssl_verify":            true,
	"gitlab.group_visibility":      "private",
	"gitlab.add_description":       false,
	"gitlab.create_user":           false,
	"gitlab.ldap_provider":         "",
	"gitlab.access_level":          "developer",
	"gitlab.per_page":              100,
	"gitlab.requests_per_second":   0,
	"gitlab.timeout":               "30s",
	"retry.max_attempts":           3,
	"retry.base_delay":             "1s",
	"log.file":                     "",
	"log.level":                    "info",
	"journal.dsn":                  "",
	"schedule.cron":                "",
	"executed_from":                "terminal",
}

// Load reads the JSON configuration at path. If envFile exists it is loaded
// into the process environment first, so secrets can be kept out of the JSON
// file. Environment variables override file values.
func Load(path, envFile string) (*Configuration, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Field: envFile, Message: "could not load env file", Err: err}
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Field: path, Message: "could not read configuration file", Err: err}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Field: path, Message: "could not decode configuration", Err: err}
	}
	return &cfg, nil
}

// Validate performs every check that must pass before any network call.
func (c *Configuration) Validate() error {
	if c.GitLab.API == "" {
		return &Error{Field: "gitlab.api", Message: "GitLab API is empty"}
	}
	switch {
	case c.GitLab.PrivateToken == "" && c.GitLab.OAuthToken == "":
		return &Error{Field: "gitlab", Message: "set one of private_token or oauth_token"}
	case c.GitLab.PrivateToken != "" && c.GitLab.OAuthToken != "":
		return &Error{Field: "gitlab", Message: "set at most one of private_token or oauth_token"}
	}
	if _, err := ParseAccessLevel(c.GitLab.AccessLevel); err != nil {
		return &Error{Field: "gitlab.access_level", Message: err.Error()}
	}
	switch c.GitLab.GroupVisibility {
	case "", "private", "internal", "public":
	default:
		return &Error{Field: "gitlab.group_visibility", Message: fmt.Sprintf("unknown visibility %q", c.GitLab.GroupVisibility)}
	}
	if c.GitLab.PerPage < 0 || c.GitLab.PerPage > 100 {
		return &Error{Field: "gitlab.per_page", Message: "must be between 1 and 100"}
	}
	if c.GitLab.RequestsPerSecond < 0 {
		return &Error{Field: "gitlab.requests_per_second", Message: "must not be negative"}
	}

	if c.LDAP.URL == "" {
		return &Error{Field: "ldap.url", Message: "LDAP is not configured"}
	}
	if c.LDAP.GroupsBaseDN == "" {
		return &Error{Field: "ldap.groups_base_dn", Message: "groups base is empty"}
	}
	if c.LDAP.UsersBaseDN == "" {
		return &Error{Field: "ldap.users_base_dn", Message: "users base is empty"}
	}
	if c.LDAP.GroupAttribute != "" && c.LDAP.GroupPrefix != "" {
		return &Error{Field: "ldap", Message: "group_attribute and group_prefix are mutually exclusive"}
	}
	if c.GitLab.CreateUser && c.GitLab.LDAPProvider == "" {
		return &Error{Field: "gitlab.ldap_provider", Message: "required when create_user is enabled"}
	}
	if _, err := logging.ParseMode(c.ExecutedFrom); err != nil {
		return &Error{Field: "executed_from", Message: err.Error()}
	}
	if c.Retry.MaxAttempts < 0 {
		return &Error{Field: "retry.max_attempts", Message: "must not be negative"}
	}
	return nil
}

// Access levels accepted by gitlab.access_level.
var accessLevels = map[string]int{
	"guest":      10,
	"reporter":   20,
	"developer":  30,
	"maintainer": 40,
	"owner":      50,
}

// ParseAccessLevel returns the numeric GitLab access level for name.
func ParseAccessLevel(name string) (int, error) {
	if name == "" {
		return accessLevels["developer"], nil
	}
	level, ok := accessLevels[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown access level %q", name)
	}
	return level, nil
}
