package config

import (
	"hash/fnv"
	"reflect"
	"strings"

	logx "localnotify/pkg/logx"
)

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// SummarizeConfigChange lists the sections that differ and log fields
// describing the new values. Secrets such as the Telegram token are never
// included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	if oldCfg.Center != newCfg.Center {
		changed = append(changed, "center")
		attrs = append(attrs,
			logx.String("center.location", newCfg.Center.Location),
			logx.String("center.prompt", newCfg.Center.Prompt),
			logx.String("center.tick", newCfg.Center.Tick),
		)
	}

	if !reflect.DeepEqual(oldCfg.Facade, newCfg.Facade) {
		changed = append(changed, "facade")
		attrs = append(attrs,
			logx.Strings("facade.authorization_options", newCfg.Facade.AuthorizationOptions),
			logx.Bool("facade.cancel_requires_permission", newCfg.Facade.CancelGated()),
		)
	}

	var ot, nt TelegramConfig
	if oldCfg.Telegram != nil {
		ot = *oldCfg.Telegram
	}
	if newCfg.Telegram != nil {
		nt = *newCfg.Telegram
	}
	if ot != nt {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
		)
	}

	return changed, attrs
}

// RestartRequired reports whether a change touches sections that are only
// read at startup.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		switch s {
		case "storage", "telegram", "facade":
			return true
		}
	}
	return false
}
