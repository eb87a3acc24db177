package rediskey

import "fmt"

const (
	SettingsPrefix = "settings"
	SequencePrefix = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildPlatformSettingsKey returns "settings:platform".
func BuildPlatformSettingsKey() string {
	return NamespaceKey(SettingsPrefix, "platform")
}

// BuildSequenceKey returns "seq:{prefix}:{day}".
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}
