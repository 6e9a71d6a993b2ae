package geo

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
)

type stubReader struct {
	countries map[string]string
	lookups   int
}

func (s *stubReader) City(ip net.IP) (*geoip2.City, error) {
	s.lookups++
	code, ok := s.countries[ip.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	rec := &geoip2.City{}
	rec.Country.IsoCode = code
	return rec, nil
}

func (s *stubReader) Close() error { return nil }

func TestMaxMind_Country(t *testing.T) {
	reader := &stubReader{countries: map[string]string{"81.2.69.142": "GB"}}
	m := &MaxMind{reader: reader}

	assert.Equal(t, "GB", m.Country("81.2.69.142"))
	assert.Equal(t, "", m.Country("8.8.8.8"), "lookup miss")
	assert.Equal(t, 2, reader.lookups)

	assert.Equal(t, "", m.Country("not-an-ip"))
	assert.Equal(t, "", m.Country("10.0.0.1"))
	assert.Equal(t, "", m.Country("127.0.0.1"))
	assert.Equal(t, 2, reader.lookups, "private and invalid addresses are not looked up")
}

func TestNop(t *testing.T) {
	var l Locator = Nop{}
	assert.Equal(t, "", l.Country("81.2.69.142"))
}
