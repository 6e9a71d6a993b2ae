package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Locator resolves an IP address to an ISO country code. An empty string
// means unknown.
type Locator interface {
	Country(ip string) string
}

// Nop is the Locator used when no GeoIP database is configured.
type Nop struct{}

func (Nop) Country(string) string { return "" }

// cityReader is the subset of *geoip2.Reader used here.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// MaxMind looks countries up in a GeoIP2/GeoLite2 City database.
type MaxMind struct {
	reader cityReader
}

// Open loads the .mmdb file at path.
func Open(path string) (*MaxMind, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMind{reader: r}, nil
}

// Country returns "" for unparsable, private or unknown addresses.
func (m *MaxMind) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() {
		return ""
	}
	record, err := m.reader.City(parsed)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database.
func (m *MaxMind) Close() error {
	return m.reader.Close()
}
