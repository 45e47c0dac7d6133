package config

import "fmt"

// ResolveURI returns the section's explicit URI if set, otherwise composes
// one from host/port/database/user/password (spec §6.1: "uri overrides all
// other fields").
func (s *DatabaseSection) ResolveURI(scheme string) string {
	if s == nil {
		return ""
	}
	if s.URI != "" {
		return s.URI
	}

	uri := scheme + "://"
	if s.User != "" {
		if s.Password != "" {
			uri += fmt.Sprintf("%s:%s@", s.User, s.Password)
		} else {
			uri += s.User + "@"
		}
	}
	uri += s.Host
	if s.Port != 0 {
		uri += fmt.Sprintf(":%d", s.Port)
	}
	if s.Database != "" {
		uri += "/" + s.Database
	}

	switch scheme {
	case "postgresql":
		if s.SSLMode != "" {
			uri += "?sslmode=" + s.SSLMode
		}
	case "mongodb":
		if s.AuthSource != "" {
			uri += "?authSource=" + s.AuthSource
		}
	}
	return uri
}
