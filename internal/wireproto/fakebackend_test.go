package wireproto

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"

	"github.com/jkantaria/pglue/internal/proto"
)

// fakeBackend speaks just enough of the v3 protocol over one half of a
// net.Pipe to drive Conn through a handshake and a simple query, without
// a real PostgreSQL server (SPEC_FULL.md's [AMBIENT] Test tooling).
type fakeBackend struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newFakeBackend(t *testing.T, conn net.Conn) *fakeBackend {
	return &fakeBackend{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (f *fakeBackend) send(body []byte) {
	f.t.Helper()
	if _, err := f.conn.Write(body); err != nil {
		f.t.Fatalf("fakeBackend.send: %v", err)
	}
}

// readStartup consumes the untyped StartupMessage every new connection
// sends first.
func (f *fakeBackend) readStartup() []byte {
	f.t.Helper()
	n, err := proto.ReadUntypedHeader(f.r)
	if err != nil {
		f.t.Fatalf("reading startup header: %v", err)
	}
	body := make([]byte, int(n)-4)
	if _, err := io.ReadFull(f.r, body); err != nil {
		f.t.Fatalf("reading startup body: %v", err)
	}
	return body
}

func (f *fakeBackend) sendAuthOK() {
	b, err := proto.NewBuilder(proto.TagAuthentication).Int32(proto.AuthOK).Finish()
	if err != nil {
		f.t.Fatalf("building AuthenticationOk: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendParameterStatus(name, value string) {
	b, err := proto.NewBuilder(proto.TagParameterStatus).CString(name).CString(value).Finish()
	if err != nil {
		f.t.Fatalf("building ParameterStatus: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendBackendKeyData(pid, key int32) {
	b, err := proto.NewBuilder(proto.TagBackendKeyData).Int32(pid).Int32(key).Finish()
	if err != nil {
		f.t.Fatalf("building BackendKeyData: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendReadyForQuery(status byte) {
	b, err := proto.NewBuilder(proto.TagReadyForQuery).Byte(status).Finish()
	if err != nil {
		f.t.Fatalf("building ReadyForQuery: %v", err)
	}
	f.send(b)
}

// completeTrustHandshake runs the no-password "trust" authentication path
// every dialing Conn performs before Dial/newConn returns.
func (f *fakeBackend) completeTrustHandshake() {
	f.readStartup()
	f.sendAuthOK()
	f.sendParameterStatus("server_version", "16.0")
	f.sendBackendKeyData(1234, 5678)
	f.sendReadyForQuery('I')
}

func TestNewConnTrustHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	backend := newFakeBackend(t, server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		backend.completeTrustHandshake()
	}()

	opt := Options{User: "alice", Database: "app"}
	conn, err := newConn(context.Background(), client, opt, nil, nil, NewChannelRegistry())
	if err != nil {
		t.Fatalf("newConn: %v", err)
	}
	defer conn.Close(nil)

	<-done

	if conn.Params()["server_version"] != "16.0" {
		t.Fatalf("Params()[server_version] = %q", conn.Params()["server_version"])
	}
	if conn.TxStatus() != 'I' {
		t.Fatalf("TxStatus() = %q, want 'I'", conn.TxStatus())
	}
}
