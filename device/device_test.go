package device

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dyastin-0/gota/core"
	"github.com/Dyastin-0/gota/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeouts() core.Timeouts {
	return core.Timeouts{
		Invitation:     500 * time.Millisecond,
		Backoff:        50 * time.Millisecond,
		Authentication: 500 * time.Millisecond,
		Connection:     time.Second,
		Upload:         5 * time.Second,
		Idle:           2 * time.Second,
	}
}

func startDevice(t *testing.T, cfg Config, opts ...Option) (*Device, <-chan *Image) {
	t.Helper()

	images := make(chan *Image, 4)
	cfg.Host = "127.0.0.1"

	opts = append([]Option{
		WithTimeouts(timeouts()),
		OnImage(func(img *Image) { images <- img }),
	}, opts...)

	d := New(cfg, opts...)
	require.NoError(t, d.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- d.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-errs, context.Canceled)
	})

	return d, images
}

func image(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	path := filepath.Join(t.TempDir(), "firmware.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func upload(t *testing.T, d *Device, path, password string) (*core.Summary, error) {
	t.Helper()

	u, err := core.NewUploader(core.WithTimeouts(timeouts()), core.WithProgress(core.NoProgress))
	require.NoError(t, err)
	defer u.Close()

	return u.Upload(context.Background(), core.UploadRequest{
		FilePath:      path,
		DeviceAddress: "127.0.0.1",
		DevicePort:    d.Addr().Port,
		Password:      password,
	})
}

func received(t *testing.T, images <-chan *Image) *Image {
	t.Helper()

	select {
	case img := <-images:
		return img
	case <-time.After(5 * time.Second):
		t.Fatal("device never stored the image")
		return nil
	}
}

func TestUploadToDevice(t *testing.T) {
	dir := t.TempDir()
	d, images := startDevice(t, Config{Name: "esp-test", Dir: dir}, WithProgress(progress.New(io.Discard)))

	path, data := image(t, 7856)

	summary, err := upload(t, d, path, "")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), summary.Bytes)
	assert.Equal(t, 4, summary.Chunks)

	img := received(t, images)
	assert.Equal(t, data, img.Bytes)
	assert.Equal(t, core.MD5Hex(data), img.Digest)
	assert.Equal(t, "127.0.0.1", img.From)

	stored, err := os.ReadFile(img.Path)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	assert.Equal(t, dir, filepath.Dir(img.Path))
}

func TestUploadToProtectedDevice(t *testing.T) {
	d, images := startDevice(t, Config{Name: "esp-locked", Password: "secret"})

	path, data := image(t, 6000)

	summary, err := upload(t, d, path, "secret")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Chunks)

	img := received(t, images)
	assert.Equal(t, data, img.Bytes)
	assert.Empty(t, img.Path)
}

func TestWrongPassword(t *testing.T) {
	d, images := startDevice(t, Config{Name: "esp-locked", Password: "secret"})
	path, _ := image(t, 100)

	_, err := upload(t, d, path, "guess")
	assert.ErrorIs(t, err, core.ErrAuthenticationFailed)

	_, err = upload(t, d, path, "")
	assert.ErrorIs(t, err, core.ErrPasswordRequired)

	select {
	case <-images:
		t.Fatal("image accepted without authentication")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSequentialUploads(t *testing.T) {
	d, images := startDevice(t, Config{Name: "esp-test"})

	for _, size := range []int{1, 2048, 5000} {
		path, data := image(t, size)

		_, err := upload(t, d, path, "")
		require.NoError(t, err)
		assert.Equal(t, data, received(t, images).Bytes)
	}
}

func TestServeRequiresListen(t *testing.T) {
	d := New(Config{Name: "idle"})
	assert.Nil(t, d.Addr())
	assert.ErrorIs(t, d.Serve(context.Background()), ErrNotListening)
}

func TestTXTRecords(t *testing.T) {
	open := New(Config{Name: "a", Board: "esp32"})
	assert.Contains(t, open.TXTRecords(), "board=esp32")
	assert.Contains(t, open.TXTRecords(), "auth_upload=no")

	locked := New(Config{Name: "b", Board: "esp8266", Password: "x"})
	assert.Contains(t, locked.TXTRecords(), "auth_upload=yes")

	assert.Equal(t, "_arduino._tcp", serviceType(core.DefaultServiceName))
	assert.Equal(t, "_arduino._tcp", serviceType("_arduino._tcp.local."))
}
