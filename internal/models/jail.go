package models

// FilterDefinition is the set of failure patterns a jail matches log lines with.
type FilterDefinition struct {
	Name        string   `json:"name"`
	FailRegex   []string `json:"failregex"`
	IgnoreRegex string   `json:"ignoreregex,omitempty"`
	DatePattern string   `json:"datepattern,omitempty"`
	Description string   `json:"description,omitempty"`
}

// JailDefinition binds a filter to a log source, ports and timing thresholds.
// Times are fail2ban duration strings ("10m", "1h", "600").
type JailDefinition struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Port     string `json:"port"`
	Filter   string `json:"filter"`
	LogPath  string `json:"logpath"`
	MaxRetry int    `json:"maxretry"`
	FindTime string `json:"findtime"`
	BanTime  string `json:"bantime"`
	Backend  string `json:"backend,omitempty"`
	Action   string `json:"action,omitempty"`
}

// JailTemplate is a catalogue entry a jail can be created from.
type JailTemplate struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Filter      FilterDefinition `json:"filter"`
	Jail        JailDefinition   `json:"jail"`
}

// JailStatus is the engine's live view of one jail.
type JailStatus struct {
	Name            string   `json:"name"`
	CurrentlyFailed int      `json:"currently_failed"`
	TotalFailed     int      `json:"total_failed"`
	CurrentlyBanned int      `json:"currently_banned"`
	TotalBanned     int      `json:"total_banned"`
	BannedIPs       []string `json:"banned_ips"`
	FileList        []string `json:"file_list,omitempty"`
}
