package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateActionIP(t *testing.T) {
	assert.NoError(t, ValidateActionIP("192.168.10.30"))
	assert.NoError(t, ValidateActionIP("10.0.0.5"))

	for _, bad := range []string{"", "hostname", "127.0.0.1", "224.0.0.1", "0.0.0.0", "::1", "fe80::1", "192.168.10.999"} {
		assert.ErrorIs(t, ValidateActionIP(bad), ErrInvalidIP, bad)
	}
}

func TestValidateMAC(t *testing.T) {
	assert.NoError(t, ValidateMAC("aa:bb:cc:dd:ee:ff"))
	assert.NoError(t, ValidateMAC("AA:BB:CC:DD:EE:FF"))

	for _, bad := range []string{"", "aa:bb:cc:dd:ee", "aa-bb-cc-dd-ee-ff", "aabbccddeeff", "zz:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff:00"} {
		assert.ErrorIs(t, ValidateMAC(bad), ErrInvalidMAC, bad)
	}
}

func TestProjectStatus_PriorityOrder(t *testing.T) {
	base := Device{Flags: Flags{Redirected: true, Isolated: true, Quarantined: true}}

	assert.Equal(t, StatusOffline, base.ProjectStatus(true, true, 100), "offline wins over everything")
	assert.Equal(t, StatusContained, base.ProjectStatus(false, true, 100))

	base.Flags.Isolated = false
	assert.Equal(t, StatusDeceived, base.ProjectStatus(false, true, 100))

	base.Flags.Redirected = false
	assert.Equal(t, StatusQuarantined, base.ProjectStatus(false, true, 100))

	base.Flags.Quarantined = false
	assert.Equal(t, StatusSuspicious, base.ProjectStatus(false, true, 100))
	assert.Equal(t, StatusIdle, base.ProjectStatus(false, false, 0))
	assert.Equal(t, StatusOnline, base.ProjectStatus(false, false, 42))
}

func TestClampTrust(t *testing.T) {
	assert.Equal(t, 0, ClampTrust(-5))
	assert.Equal(t, 100, ClampTrust(250))
	assert.Equal(t, 73, ClampTrust(73))
}

func TestDeviceOffline(t *testing.T) {
	now := time.Now()
	d := Device{LastSeen: now.Add(-31 * time.Second)}
	assert.True(t, d.Offline(now, 30*time.Second))
	d.LastSeen = now.Add(-29 * time.Second)
	assert.False(t, d.Offline(now, 30*time.Second))
}

func TestNewDevice_InitialState(t *testing.T) {
	now := time.Now()
	d := NewDevice("AA:BB:CC:DD:EE:FF", now)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", d.MAC)
	assert.Equal(t, DefaultTrust, d.TrustScore)
	assert.Equal(t, Flags{Quarantined: true}, d.Flags)
	assert.Equal(t, now, d.FirstSeen)
	assert.Equal(t, now, d.LastSeen)
}
