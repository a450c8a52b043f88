package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ipv4", "192.168.1.47", "192.168.1.0"},
		{"ipv4 loopback", "127.0.0.1", "127.0.0.0"},
		{"ipv4 mapped in ipv6", "::ffff:10.20.30.40", "10.20.30.0"},
		{"ipv6 keeps the /48", "2001:db8:85a3::8a2e:370:7334", "2001:db8:85a3::"},
		{"ipv6 with zone", "fe80::1%eth0", "fe80::"},
		{"empty", "", "unknown"},
		{"already unknown", "unknown", "unknown"},
		{"garbage", "not-an-ip", "invalid"},
		{"host and port", "10.0.0.1:8080", "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskIP(tt.input))
		})
	}
}
