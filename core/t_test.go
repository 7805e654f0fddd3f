package core

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDevice scripts the device side of an upload on loopback.
type fakeDevice struct {
	t    *testing.T
	conn *net.UDPConn

	// invite holds the reply to each invitation in order. An empty or
	// missing entry leaves that invitation unanswered.
	invite []string
	// late delays the reply to the given invitation attempt.
	late map[int]time.Duration
	// auth is the reply to an authentication message, empty for none.
	auth string
	// connect makes the device dial back once it accepted.
	connect bool
	// ack builds the reply to a chunk of n bytes.
	ack func(n int) string
	// stall stops acknowledging after connecting.
	stall bool

	mu        sync.Mutex
	datagrams []string
	chunks    [][]byte
	listen    int
	invites   int

	done chan error
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	f := &fakeDevice{
		t:       t,
		conn:    conn,
		connect: true,
		ack:     func(n int) string { return strconv.Itoa(n) },
		done:    make(chan error, 1),
	}
	t.Cleanup(func() { conn.Close() })
	return f
}

func (f *fakeDevice) port() int {
	return f.conn.LocalAddr().(*net.UDPAddr).Port
}

func (f *fakeDevice) request(path string) UploadRequest {
	return UploadRequest{FilePath: path, DeviceAddress: "127.0.0.1", DevicePort: f.port()}
}

func (f *fakeDevice) start() *fakeDevice {
	go f.serve()
	return f
}

func (f *fakeDevice) serve() {
	buf := make([]byte, 1024)
	for {
		n, from, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := string(buf[:n])

		f.mu.Lock()
		f.datagrams = append(f.datagrams, msg)
		f.mu.Unlock()

		if inv, err := ParseInvitation(buf[:n]); err == nil {
			f.mu.Lock()
			f.invites++
			attempt := f.invites
			f.listen = inv.Port
			f.mu.Unlock()

			if attempt > len(f.invite) || f.invite[attempt-1] == "" {
				continue
			}

			reply := f.invite[attempt-1]
			if d, ok := f.late[attempt]; ok {
				time.AfterFunc(d, func() { f.conn.WriteToUDP([]byte(reply), from) })
				continue
			}
			f.conn.WriteToUDP([]byte(reply), from)
			if reply == "OK" && f.connect {
				go f.pull(inv)
			}
			continue
		}

		if _, err := ParseAuthMessage(buf[:n]); err == nil {
			if f.auth == "" {
				continue
			}
			f.conn.WriteToUDP([]byte(f.auth), from)
			if f.auth == "OK" && f.connect {
				f.mu.Lock()
				port := f.listen
				f.mu.Unlock()
				go f.pull(&Invitation{Port: port, Length: f.lastLength()})
			}
		}
	}
}

func (f *fakeDevice) lastLength() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.datagrams) - 1; i >= 0; i-- {
		if inv, err := ParseInvitation([]byte(f.datagrams[i])); err == nil {
			return inv.Length
		}
	}
	return 0
}

// pull reads the image and reports how the uploader left the socket.
func (f *fakeDevice) pull(inv *Invitation) {
	sock, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(inv.Port)))
	if err != nil {
		f.done <- err
		return
	}
	defer sock.Close()

	if f.stall {
		_, err := io.Copy(io.Discard, sock)
		f.done <- err
		return
	}

	var received int64
	buf := make([]byte, ChunkSize)
	for received < inv.Length {
		want := min(int64(ChunkSize), inv.Length-received)
		n, err := io.ReadFull(sock, buf[:want])
		if err != nil {
			f.done <- err
			return
		}
		received += int64(n)

		f.mu.Lock()
		f.chunks = append(f.chunks, append([]byte(nil), buf[:n]...))
		f.mu.Unlock()

		if _, err := sock.Write([]byte(f.ack(n))); err != nil {
			f.done <- err
			return
		}
	}

	_, err = sock.Read(buf)
	f.done <- err
}

// closed waits for the uploader to close the data socket.
func (f *fakeDevice) closed() error {
	f.t.Helper()

	select {
	case err := <-f.done:
		return err
	case <-time.After(5 * time.Second):
		f.t.Fatal("device socket was never closed")
		return nil
	}
}

func (f *fakeDevice) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.datagrams...)
}

func (f *fakeDevice) image() ([]byte, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var data []byte
	sizes := make([]int, 0, len(f.chunks))
	for _, c := range f.chunks {
		data = append(data, c...)
		sizes = append(sizes, len(c))
	}
	return data, sizes
}

func (f *fakeDevice) listenPort() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listen
}

type recordingProgress struct {
	mu       sync.Mutex
	total    int64
	adds     []int
	finished bool
	exited   bool
}

func (r *recordingProgress) factory(total int64, _ string) ProgressObserver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	return r
}

func (r *recordingProgress) Add(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds = append(r.adds, n)
	return nil
}

func (r *recordingProgress) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	return nil
}

func (r *recordingProgress) Exit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exited = true
	return nil
}

func testTimeouts() Timeouts {
	return Timeouts{
		Invitation:     300 * time.Millisecond,
		Backoff:        20 * time.Millisecond,
		Authentication: 300 * time.Millisecond,
		Connection:     500 * time.Millisecond,
		Upload:         3 * time.Second,
		Idle:           time.Second,
	}
}

func newTestUploader(t *testing.T, opts ...Option) *Uploader {
	t.Helper()

	opts = append([]Option{WithTimeouts(testTimeouts()), WithProgress(NoProgress)}, opts...)
	u, err := NewUploader(opts...)
	require.NoError(t, err)

	t.Cleanup(func() { u.Close() })
	return u
}

func writeImage(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/256)
	}

	path := filepath.Join(t.TempDir(), "firmware.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func refused(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
