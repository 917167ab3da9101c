// Package algo adapts the classical SSH-2 algorithm suite (DH group1/14
// with SHA1, RSA/DSS host keys, AES/3DES in CBC or CTR mode, HMAC-SHA1/MD5)
// to small uniform interfaces used by the transport.
package algo

import "fmt"

// ConfigError reports an algorithm that cannot be constructed with the
// requested parameters. It is raised at construction time and never
// reaches the wire.
type ConfigError struct {
	What string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("algo: %s", e.What)
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{What: fmt.Sprintf(format, args...)}
}
