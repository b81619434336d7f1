package configs

import "fmt"

// SMTP holds configuration for the SMTP message sender. Username and
// Password are passed to PLAIN auth when both are set; leaving them empty
// disables authentication, which suits local relays and test servers.
type SMTP struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     uint16 `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	// From is the envelope and header sender address.
	From string `env:"FROM" envDefault:"noreply@localhost"`
}

// Addr returns the host:port dial address.
func (c SMTP) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
