package mail

import (
	"fmt"

	"github.com/spf13/viper"
)

// Settings holds the IMAP credentials, usually loaded from a separate
// credentials file so the job configuration can be shared freely.
type Settings struct {
	IMAPURL  string `mapstructure:"imap_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LoadSettings reads an IMAP credentials file (YAML, JSON, or TOML,
// decided by extension).
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("read credentials file: %w", err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode credentials file: %w", err)
	}

	if s.IMAPURL == "" {
		return Settings{}, fmt.Errorf("credentials file misses imap_url")
	}
	if s.Username == "" {
		return Settings{}, fmt.Errorf("credentials file misses username")
	}
	if s.Password == "" {
		return Settings{}, fmt.Errorf("credentials file misses password")
	}
	return s, nil
}
