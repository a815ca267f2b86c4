package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	SchedulerChanged bool
	NewPollInterval  SchedulerConfig

	DenyListChanged bool
	NewDenyList     []string

	ApprovalTimeoutChanged bool

	LogLevelChanged bool
	NewLogLevel     string

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.SchedulerChanged ||
		d.DenyListChanged ||
		d.ApprovalTimeoutChanged ||
		d.LogLevelChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Scheduler.PollInterval != new.Scheduler.PollInterval {
		d.SchedulerChanged = true
		d.NewPollInterval = new.Scheduler
	}

	if !slices.Equal(old.Swarm.DenySensitivity, new.Swarm.DenySensitivity) {
		d.DenyListChanged = true
		d.NewDenyList = slices.Clone(new.Swarm.DenySensitivity)
	}
	d.ApprovalTimeoutChanged = old.Swarm.ApprovalTimeout != new.Swarm.ApprovalTimeout

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	// Non-reloadable warnings
	if old.Web != new.Web {
		d.NonReloadable = append(d.NonReloadable, "web")
	}
	if old.NATS.Host != new.NATS.Host {
		d.NonReloadable = append(d.NonReloadable, "nats.host")
	}
	if old.NATS.Port != new.NATS.Port {
		d.NonReloadable = append(d.NonReloadable, "nats.port")
	}
	if old.NATS.MaxPayload != new.NATS.MaxPayload {
		d.NonReloadable = append(d.NonReloadable, "nats.max_payload")
	}
	if old.NATS.DataDir != new.NATS.DataDir {
		d.NonReloadable = append(d.NonReloadable, "nats.data_dir")
	}
	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.Vault.Passphrase != new.Vault.Passphrase {
		d.NonReloadable = append(d.NonReloadable, "vault.passphrase")
	}
	if old.Tracing != new.Tracing {
		d.NonReloadable = append(d.NonReloadable, "tracing")
	}
	if old.Log.Format != new.Log.Format {
		d.NonReloadable = append(d.NonReloadable, "log.format")
	}

	return d
}
