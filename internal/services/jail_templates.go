package services

import (
	"bytes"
	"sort"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/Wikid82/jailkeeper/internal/models"
)

// Template categories.
const (
	CategorySSH      = "ssh"
	CategoryWeb      = "web"
	CategoryMail     = "mail"
	CategoryDatabase = "database"
	CategoryOther    = "other"
)

var filterTemplate = template.Must(template.New("filter").Funcs(sprig.TxtFuncMap()).Parse(
	`# Filter {{ .Name }}{{ with .Description }}: {{ . }}{{ end }}
# Managed by jailkeeper.

[Definition]
failregex = {{ first .FailRegex }}
{{- range rest .FailRegex }}
            {{ . }}
{{- end }}
ignoreregex ={{ with .IgnoreRegex }} {{ . }}{{ end }}
{{- with .DatePattern }}
datepattern = {{ . }}
{{- end }}
`))

var jailTemplate = template.Must(template.New("jail").Funcs(sprig.TxtFuncMap()).Parse(
	`# Jail {{ .Name }}
# Managed by jailkeeper.

[{{ .Name }}]
enabled  = {{ .Enabled }}
port     = {{ .Port | default "0:65535" }}
filter   = {{ .Filter | default .Name }}
logpath  = {{ .LogPath }}
maxretry = {{ .MaxRetry }}
findtime = {{ .FindTime | default "10m" }}
bantime  = {{ .BanTime | default "1h" }}
{{- with .Backend }}
backend  = {{ . }}
{{- end }}
{{- with .Action }}
action   = {{ . }}
{{- end }}
`))

// RenderFilter renders the filter.d artifact for f.
func RenderFilter(f models.FilterDefinition) (string, error) {
	var buf bytes.Buffer
	if err := filterTemplate.Execute(&buf, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderJail renders the jail.d artifact for j.
func RenderJail(j models.JailDefinition) (string, error) {
	var buf bytes.Buffer
	if err := jailTemplate.Execute(&buf, j); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func builtinTemplate(id, name, category, description, logPath, port string, maxRetry int, failRegex ...string) models.JailTemplate {
	return models.JailTemplate{
		ID:          id,
		Name:        name,
		Category:    category,
		Description: description,
		Filter: models.FilterDefinition{
			Name:        id,
			FailRegex:   failRegex,
			Description: description,
		},
		Jail: models.JailDefinition{
			Name:     id,
			Enabled:  true,
			Port:     port,
			Filter:   id,
			LogPath:  logPath,
			MaxRetry: maxRetry,
			FindTime: "10m",
			BanTime:  "1h",
		},
	}
}

// BuiltinTemplates is the jail catalogue offered to operators. IDs avoid the
// names of filters fail2ban ships in filter.d.
var BuiltinTemplates = func() []models.JailTemplate {
	repeat := builtinTemplate("repeat-offender", "Repeat offenders", CategoryOther,
		"Long bans for addresses banned repeatedly by other jails",
		"/var/log/fail2ban.log", "0:65535", 5,
		`^\s*\S+\s+fail2ban\.actions\s*\[\d+\]:\s+NOTICE\s+\[(?!repeat-offender\])\S+\]\s+Ban\s+<HOST>`)
	repeat.Jail.FindTime = "1d"
	repeat.Jail.BanTime = "1w"

	return []models.JailTemplate{
		builtinTemplate("sshd-strict", "SSH brute force", CategorySSH,
			"Failed and invalid SSH logins",
			"/var/log/auth.log", "ssh", 3,
			`^.*sshd\[\d+\]: Failed (?:password|publickey) for (?:invalid user )?\S+ from <HOST> port \d+`,
			`^.*sshd\[\d+\]: Invalid user \S+ from <HOST>`),
		builtinTemplate("nginx-basic-auth", "Nginx basic auth", CategoryWeb,
			"Failed HTTP basic authentication against nginx",
			"/var/log/nginx/error.log", "http,https", 5,
			`^ \[error\] \d+#\d+: \*\d+ user "\S+":? (?:password mismatch|was not found in ".*"), client: <HOST>`),
		builtinTemplate("nginx-404", "Nginx 404 scanners", CategoryWeb,
			"Clients producing bursts of not-found responses",
			"/var/log/nginx/access.log", "http,https", 20,
			`^<HOST> - \S+ \[[^\]]+\] "(?:GET|POST|HEAD) [^"]+" 404 `),
		builtinTemplate("nginx-probe-paths", "Nginx bot search", CategoryWeb,
			"Probes for common admin and backup paths",
			"/var/log/nginx/access.log", "http,https", 2,
			`^<HOST> - \S+ \[[^\]]+\] "(?:GET|POST) /(?:wp-admin|phpmyadmin|\.env|\.git|admin\.php)[^"]*" \d+ `),
		builtinTemplate("apache-basic-auth", "Apache auth", CategoryWeb,
			"Failed authentication against Apache",
			"/var/log/apache2/error.log", "http,https", 5,
			`^\[[^\]]+\] \[(?:core|auth_basic):(?:error|info)\] \[pid \d+(?::tid \d+)?\] \[client <HOST>(?::\d+)?\] AH0\d+: user .* (?:authentication failure|not found|password mismatch)`),
		builtinTemplate("wordpress-login", "WordPress login", CategoryWeb,
			"Repeated POSTs to the WordPress login and XML-RPC endpoints",
			"/var/log/nginx/access.log", "http,https", 5,
			`^<HOST> - \S+ \[[^\]]+\] "POST /(?:wp-login\.php|xmlrpc\.php)[^"]*" (?:200|401|403) `),
		builtinTemplate("postfix-smtp-auth", "Postfix SASL", CategoryMail,
			"Failed SMTP AUTH attempts",
			"/var/log/mail.log", "smtp,465,submission", 3,
			`^.*postfix/(?:submission/)?smtpd\[\d+\]: warning: [-._\w]+\[<HOST>\]: SASL (?:LOGIN|PLAIN|(?:CRAM|DIGEST)-MD5) authentication failed`),
		builtinTemplate("dovecot-auth", "Dovecot", CategoryMail,
			"Failed IMAP and POP3 logins",
			"/var/log/mail.log", "pop3,pop3s,imap,imaps", 5,
			`^.*dovecot: (?:imap|pop3)-login: (?:Disconnected|Aborted login)(?: \(auth failed, \d+ attempts[^)]*\))?: .* rip=<HOST>`),
		builtinTemplate("mysql-denied", "MySQL / MariaDB", CategoryDatabase,
			"Access denied errors from the database server",
			"/var/log/mysql/error.log", "3306", 5,
			`^.*\[Warning\] Access denied for user '[^']+'@'<HOST>'`),
		builtinTemplate("postgresql-auth", "PostgreSQL", CategoryDatabase,
			"Password authentication failures",
			"/var/log/postgresql/postgresql.log", "5432", 5,
			`^.*\[\d+\] \S+@\S+ FATAL:\s+password authentication failed for user "[^"]+".*host=<HOST>`),
		repeat,
	}
}()

// TemplatesByCategory groups the catalogue, each category sorted by id.
func TemplatesByCategory(templates []models.JailTemplate) map[string][]models.JailTemplate {
	out := map[string][]models.JailTemplate{}
	for _, t := range templates {
		out[t.Category] = append(out[t.Category], t)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return out
}
