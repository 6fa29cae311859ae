package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. JAILKEEPER_DATA_DIR.
const EnvPrefix = "JAILKEEPER"

// Config captures runtime configuration. Every component receives the paths
// and binaries it needs from here instead of reading globals.
type Config struct {
	Environment string `mapstructure:"environment"`
	HTTPPort    string `mapstructure:"http_port"`
	Debug       bool   `mapstructure:"debug"`
	LogFile     string `mapstructure:"log_file"`

	DataDir           string `mapstructure:"data_dir"`
	DatabasePath      string `mapstructure:"db_path"`
	WhitelistFile     string `mapstructure:"whitelist_file"`
	PermanentBansFile string `mapstructure:"permanent_bans_file"`
	BackupDir         string `mapstructure:"backup_dir"`

	EngineBinary  string `mapstructure:"engine_binary"`
	ServiceBinary string `mapstructure:"service_binary"`
	ServiceName   string `mapstructure:"service_name"`

	JailLocalPath   string `mapstructure:"jail_local"`
	JailDir         string `mapstructure:"jail_dir"`
	FilterDir       string `mapstructure:"filter_dir"`
	SecurityLogPath string `mapstructure:"security_log"`

	GeoIPDatabase string   `mapstructure:"geoip_db"`
	NotifyURLs    []string `mapstructure:"notify_urls"`
}

// Load reads defaults, an optional config file named by JAILKEEPER_CONFIG and
// environment overrides, then makes sure the data directories exist.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillDerived()

	if err := cfg.EnsureDirs(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("http_port", "8080")
	v.SetDefault("debug", false)
	v.SetDefault("log_file", "")

	v.SetDefault("data_dir", "/var/lib/jailkeeper")
	v.SetDefault("db_path", "")
	v.SetDefault("whitelist_file", "")
	v.SetDefault("permanent_bans_file", "")
	v.SetDefault("backup_dir", "")

	v.SetDefault("engine_binary", "fail2ban-client")
	v.SetDefault("service_binary", "systemctl")
	v.SetDefault("service_name", "fail2ban")

	v.SetDefault("jail_local", "/etc/fail2ban/jail.local")
	v.SetDefault("jail_dir", "/etc/fail2ban/jail.d")
	v.SetDefault("filter_dir", "/etc/fail2ban/filter.d")
	v.SetDefault("security_log", "/var/log/fail2ban.log")

	v.SetDefault("geoip_db", "")
	v.SetDefault("notify_urls", []string{})
}

// fillDerived points unset state files into DataDir.
func (c *Config) fillDerived() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "history.db")
	}
	if c.WhitelistFile == "" {
		c.WhitelistFile = filepath.Join(c.DataDir, "whitelist.json")
	}
	if c.PermanentBansFile == "" {
		c.PermanentBansFile = filepath.Join(c.DataDir, "permanent_bans.json")
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.DataDir, "backups")
	}
}

// EnsureDirs creates the directories the locally owned state lives in.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, filepath.Dir(c.DatabasePath), c.BackupDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure data directory: %w", err)
		}
	}
	return nil
}

// ForDataDir returns a Config rooted entirely under dir. The fail2ban paths
// are placed in dir/fail2ban so tests never touch /etc.
func ForDataDir(dir string) Config {
	cfg := Config{
		Environment:     "test",
		HTTPPort:        "0",
		DataDir:         dir,
		EngineBinary:    "fail2ban-client",
		ServiceBinary:   "systemctl",
		ServiceName:     "fail2ban",
		JailLocalPath:   filepath.Join(dir, "fail2ban", "jail.local"),
		JailDir:         filepath.Join(dir, "fail2ban", "jail.d"),
		FilterDir:       filepath.Join(dir, "fail2ban", "filter.d"),
		SecurityLogPath: filepath.Join(dir, "fail2ban.log"),
	}
	cfg.fillDerived()
	return cfg
}
