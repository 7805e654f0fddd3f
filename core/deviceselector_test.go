package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPort(t *testing.T) {
	tests := []struct {
		board string
		want  int
	}{
		{board: "ESP8266_NODEMCUV2", want: 8266},
		{board: "nodemcuv2", want: 8266},
		{board: "esp8266_generic", want: 8266},
		{board: "ESP32_DEV", want: 3232},
		{board: "uno", want: 0},
		{board: "", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.board, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPort(map[string]string{"board": tt.board}))
		})
	}

	assert.Zero(t, DefaultPort(nil))
}

func TestParsePort(t *testing.T) {
	port, err := ParsePort(" 8266 ")
	require.NoError(t, err)
	assert.Equal(t, 8266, port)

	for _, in := range []string{"", "0", "65536", "-1", "abc"} {
		_, err := ParsePort(in)
		assert.ErrorIs(t, err, ErrInvalidPort, in)
	}
}

func TestDeviceFilter(t *testing.T) {
	b := newRegistryBuilder()
	b.put(&DeviceRecord{Name: "esp-kitchen", Address: "192.168.1.40", Metadata: map[string]string{"board": "esp32"}})
	b.put(&DeviceRecord{Name: "esp-garage", Address: "192.168.1.41", Metadata: map[string]string{"board": "nodemcuv2"}})
	b.put(&DeviceRecord{Name: "lamp", Address: "10.0.0.7", Metadata: map[string]string{}})

	d := NewDeviceSelector()
	d.registry = b.freeze()

	assert.Len(t, d.filteredDevices(), 3)

	d.filter = "ESP"
	names := []string{}
	for _, r := range d.filteredDevices() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"esp-garage", "esp-kitchen"}, names)

	d.filter = "10.0.0"
	require.Len(t, d.filteredDevices(), 1)
	assert.Equal(t, "lamp", d.filteredDevices()[0].Name)

	d.filter = "nodemcu"
	require.Len(t, d.filteredDevices(), 1)
	assert.Equal(t, "esp-garage", d.filteredDevices()[0].Name)
}

func TestFormatDeviceOption(t *testing.T) {
	text := formatDeviceOption(&DeviceRecord{
		Name:     "a-very-long-device-name-indeed",
		Address:  "192.168.1.40",
		Metadata: map[string]string{"board": "esp32", "auth_upload": "yes"},
	})

	assert.Contains(t, text, "a-very-long-devic...")
	assert.Contains(t, text, "192.168.1.40")
	assert.Contains(t, text, "esp32")
	assert.Contains(t, text, "(password)")
}
