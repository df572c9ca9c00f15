package am

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/sentinel/sentinel.toml
	SourceUser        ConfigSource = "user"        // ~/.sentinel/sentinel.toml
	SourceProject     ConfigSource = "project"     // nearest sentinel.toml
	SourceFile        ConfigSource = "file"        // --config
	SourceEnvironment ConfigSource = "environment" // SENTINEL_* env vars
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"` // File path or env var name
}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string
}

// Introspect lists every effective setting of v with its origin. sources
// maps dotted keys to the file that set them.
func Introspect(v *viper.Viper, sources map[string]SourceInfo) []SettingInfo {
	var out []SettingInfo
	flattenSettingsWithSources(v.AllSettings(), "", sources, &out)
	return out
}

// flattenSettingsWithSources flattens settings and assigns sources from sourceMap
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, sourceMap map[string]SourceInfo, out *[]SettingInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nestedMap, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nestedMap, fullKey, sourceMap, out)
			continue
		}

		sourceInfo := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			sourceInfo = si
		}

		if envKey, ok := envOverride(fullKey); ok {
			sourceInfo = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		// Never echo credentials
		if fullKey == "backend.token" {
			if s, ok := value.(string); ok && s != "" {
				value = "********"
			}
		}

		*out = append(*out, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     sourceInfo.Source,
			SourcePath: sourceInfo.Path,
		})
	}
}

// envOverride returns the environment variable that sets key, if any.
func envOverride(key string) (string, bool) {
	candidates := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
	if key == "backend.token" {
		candidates = append(candidates, "IBM_QUANTUM_API_TOKEN")
	}
	for _, name := range candidates {
		if os.Getenv(name) != "" {
			return name, true
		}
	}
	return "", false
}

// Summary counts settings by source.
func Summary(settings []SettingInfo) map[ConfigSource]int {
	counts := make(map[ConfigSource]int)
	for _, s := range settings {
		counts[s.Source]++
	}
	return counts
}
