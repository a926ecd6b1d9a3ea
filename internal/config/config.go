// Package config loads RuntimeEnv, the explicit, constructor-injected
// settings bag threaded through the dispatch, monitor, and shutdown
// packages instead of ambient globals (spec.md §9 design note). Grounded
// on teacher internal/config's registry.toml pattern (BurntSushi/toml
// decoding into a tagged struct) for the file layer, generalized here
// with an env-var override pass per spec.md §6's settings table.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// RuntimeEnv is the resolved runtime configuration for one process.
// Defaults returns the default for every field; the zero value is not
// those defaults.
type RuntimeEnv struct {
	Worker               string        `toml:"worker"`
	ReadyTimeout         time.Duration `toml:"-"`
	ReadyTimeoutMS       int           `toml:"ready_timeout_ms"`
	SkipReadyWait        bool          `toml:"skip_ready_wait"`
	Mouse                bool          `toml:"mouse"`
	SendStrategy         string        `toml:"send_strategy"`
	StrictSubmit         bool          `toml:"strict_submit"`
	AutoTrustKeys        []string      `toml:"auto_trust_keys"`
	AllIdleCooldown      time.Duration `toml:"-"`
	AllIdleCooldownMS    int           `toml:"all_idle_cooldown_ms"`
	SessionID            string        `toml:"-"` // never file-configured, env/process only
	DisplayMode          string        `toml:"display_mode"`
	ApprovalMode         string        `toml:"-"`
	SandboxMode          string        `toml:"-"`
	NetworkAccess        bool          `toml:"-"`
	MailboxRetryHorizon  time.Duration `toml:"-"`
	MailboxRetryHorizonMS int          `toml:"mailbox_retry_horizon_ms"`
}

// Defaults returns spec.md's documented defaults (§4.5, §4.8, §9 decisions).
func Defaults() RuntimeEnv {
	return RuntimeEnv{
		ReadyTimeout:        45 * time.Second,
		SendStrategy:        "auto",
		AutoTrustKeys:       []string{"Down", "Enter"},
		AllIdleCooldown:     0,
		DisplayMode:         "auto",
		ApprovalMode:        "unknown",
		SandboxMode:         "unknown",
		NetworkAccess:       true,
		MailboxRetryHorizon: 15 * time.Second,
	}
}

// Load reads an optional TOML config file (missing is not an error), then
// layers environment variable overrides on top (spec.md §6's env table),
// the latter always winning.
func Load(path string) (RuntimeEnv, error) {
	env := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var fileEnv RuntimeEnv
			if _, err := toml.DecodeFile(path, &fileEnv); err != nil {
				return RuntimeEnv{}, err
			}
			env = mergeFile(env, fileEnv)
		} else if !os.IsNotExist(err) {
			return RuntimeEnv{}, err
		}
	}

	applyEnvOverrides(&env)
	return env, nil
}

// mergeFile overlays fileEnv's non-zero fields over defaults.
func mergeFile(base, file RuntimeEnv) RuntimeEnv {
	if file.Worker != "" {
		base.Worker = file.Worker
	}
	if file.ReadyTimeoutMS > 0 {
		base.ReadyTimeout = time.Duration(file.ReadyTimeoutMS) * time.Millisecond
	}
	base.SkipReadyWait = base.SkipReadyWait || file.SkipReadyWait
	base.Mouse = base.Mouse || file.Mouse
	if file.SendStrategy != "" {
		base.SendStrategy = file.SendStrategy
	}
	base.StrictSubmit = base.StrictSubmit || file.StrictSubmit
	if len(file.AutoTrustKeys) > 0 {
		base.AutoTrustKeys = file.AutoTrustKeys
	}
	if file.AllIdleCooldownMS > 0 {
		base.AllIdleCooldown = time.Duration(file.AllIdleCooldownMS) * time.Millisecond
	}
	if file.DisplayMode != "" {
		base.DisplayMode = file.DisplayMode
	}
	if file.MailboxRetryHorizonMS > 0 {
		base.MailboxRetryHorizon = time.Duration(file.MailboxRetryHorizonMS) * time.Millisecond
	}
	return base
}

// applyEnvOverrides implements spec.md §6's environment variable table.
// Every variable always wins over file/default values when set.
func applyEnvOverrides(env *RuntimeEnv) {
	if v := os.Getenv("OMX_TEAM_WORKER"); v != "" {
		env.Worker = v
	}
	if v := envInt("OMX_TEAM_READY_TIMEOUT_MS"); v > 0 {
		env.ReadyTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envBool("OMX_TEAM_SKIP_READY_WAIT"); ok {
		env.SkipReadyWait = v
	}
	if v, ok := envBool("OMX_TEAM_MOUSE"); ok {
		env.Mouse = v
	}
	if v := os.Getenv("OMX_TEAM_SEND_STRATEGY"); v != "" {
		env.SendStrategy = v
	}
	if v, ok := envBool("OMX_TEAM_STRICT_SUBMIT"); ok {
		env.StrictSubmit = v
	}
	if v := os.Getenv("OMX_TEAM_AUTO_TRUST"); v != "" {
		env.AutoTrustKeys = strings.Split(v, ",")
	}
	if v := envInt("OMX_TEAM_ALL_IDLE_COOLDOWN_MS"); v > 0 {
		env.AllIdleCooldown = time.Duration(v) * time.Millisecond
	}
	for _, key := range []string{"OMX_SESSION_ID", "CODEX_SESSION_ID"} {
		if v := os.Getenv(key); v != "" {
			env.SessionID = v
			break
		}
	}
	if v := os.Getenv("OMX_TEAM_DISPLAY_MODE"); v != "" {
		env.DisplayMode = v
	}
	if v := os.Getenv("OMX_APPROVAL_MODE"); v != "" {
		env.ApprovalMode = v
	}
	if v := os.Getenv("OMX_SANDBOX_MODE"); v != "" {
		env.SandboxMode = v
	}
	if v, ok := envBool("OMX_NETWORK_ACCESS"); ok {
		env.NetworkAccess = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
