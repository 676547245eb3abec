package models

import (
	"fmt"
	"strconv"
)

// Preference keys. The names are persisted and must not change.
const (
	PrefLaunchOnStart   = "launchContainersOnAppLaunch"
	PrefStopOnQuit      = "quitContainersOnAppQuit"
	PrefSkippedVersion  = "lastSkippedUpdateVersion"
	PrefRemindedVersion = "lastRemindedUpdateVersion"
)

// KV is the storage Preferences sits on. SettingStore satisfies it.
type KV interface {
	Lookup(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Preferences is the typed view of the user's persisted choices.
type Preferences struct {
	kv KV
}

func NewPreferences(kv KV) *Preferences {
	return &Preferences{kv: kv}
}

// PreferenceValues is the JSON shape exchanged with clients. Unset optional
// versions are null.
type PreferenceValues struct {
	LaunchOnStart   bool    `json:"launchContainersOnAppLaunch"`
	StopOnQuit      bool    `json:"quitContainersOnAppQuit"`
	SkippedVersion  *string `json:"lastSkippedUpdateVersion"`
	RemindedVersion *string `json:"lastRemindedUpdateVersion"`
}

func (p *Preferences) LaunchOnStart() (bool, error) { return p.boolValue(PrefLaunchOnStart) }
func (p *Preferences) StopOnQuit() (bool, error)    { return p.boolValue(PrefStopOnQuit) }

func (p *Preferences) SetLaunchOnStart(v bool) error {
	return p.kv.Set(PrefLaunchOnStart, strconv.FormatBool(v))
}

func (p *Preferences) SetStopOnQuit(v bool) error {
	return p.kv.Set(PrefStopOnQuit, strconv.FormatBool(v))
}

// SkippedVersion is the release the user chose to skip, if any.
func (p *Preferences) SkippedVersion() (string, bool, error) {
	return p.optional(PrefSkippedVersion)
}

// RemindedVersion is the release the user was last reminded about, if any.
func (p *Preferences) RemindedVersion() (string, bool, error) {
	return p.optional(PrefRemindedVersion)
}

// SetSkippedVersion stores v; nil clears it.
func (p *Preferences) SetSkippedVersion(v *string) error {
	return p.setOptional(PrefSkippedVersion, v)
}

// SetRemindedVersion stores v; nil clears it.
func (p *Preferences) SetRemindedVersion(v *string) error {
	return p.setOptional(PrefRemindedVersion, v)
}

// Values reads all four preferences.
func (p *Preferences) Values() (PreferenceValues, error) {
	var out PreferenceValues
	var err error
	if out.LaunchOnStart, err = p.LaunchOnStart(); err != nil {
		return out, err
	}
	if out.StopOnQuit, err = p.StopOnQuit(); err != nil {
		return out, err
	}
	if v, ok, err := p.SkippedVersion(); err != nil {
		return out, err
	} else if ok {
		out.SkippedVersion = &v
	}
	if v, ok, err := p.RemindedVersion(); err != nil {
		return out, err
	} else if ok {
		out.RemindedVersion = &v
	}
	return out, nil
}

// Apply writes every field of v.
func (p *Preferences) Apply(v PreferenceValues) error {
	if err := p.SetLaunchOnStart(v.LaunchOnStart); err != nil {
		return err
	}
	if err := p.SetStopOnQuit(v.StopOnQuit); err != nil {
		return err
	}
	if err := p.SetSkippedVersion(v.SkippedVersion); err != nil {
		return err
	}
	return p.SetRemindedVersion(v.RemindedVersion)
}

func (p *Preferences) boolValue(key string) (bool, error) {
	v, ok, err := p.kv.Lookup(key)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("preference %q: %w", key, err)
	}
	return b, nil
}

func (p *Preferences) optional(key string) (string, bool, error) {
	v, ok, err := p.kv.Lookup(key)
	if err != nil || !ok {
		return "", false, err
	}
	return v, true, nil
}

func (p *Preferences) setOptional(key string, v *string) error {
	if v == nil {
		return p.kv.Delete(key)
	}
	return p.kv.Set(key, *v)
}
