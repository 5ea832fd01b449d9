package config

import (
	"net/url"

	"gopkg.in/yaml.v3"

	"p2pwatch/internal/model"
)

const redacted = "***"

// Redacted returns a copy safe to display: credentials and sensitive headers are masked.
func (c Config) Redacted() Config {
	out := c

	if c.Endpoint.Headers != nil {
		out.Endpoint.Headers = make(map[string]string, len(c.Endpoint.Headers))
		for k, v := range c.Endpoint.Headers {
			if model.IsSensitiveHeader(k) {
				v = redacted
			}
			out.Endpoint.Headers[k] = v
		}
	}
	out.Markets = append([]model.Market(nil), c.Markets...)

	out.Storage.DSN = redactDSN(c.Storage.DSN)
	out.Alerting.Telegram.BotToken = mask(c.Alerting.Telegram.BotToken)
	out.Cache.Password = mask(c.Cache.Password)
	out.Archive.AccessKeyID = mask(c.Archive.AccessKeyID)
	out.Archive.SecretAccessKey = mask(c.Archive.SecretAccessKey)
	return out
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "redacted")
	}
	return u.String()
}
