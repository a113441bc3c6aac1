package wireproto

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/jkantaria/pglue/codec"
	"github.com/jkantaria/pglue/internal/proto"
)

// --- fakeBackend extensions for MD5 auth and extended-query/transaction
// round trips, beyond the trust handshake covered in fakebackend_test.go.

func (f *fakeBackend) readTyped() (byte, []byte) {
	f.t.Helper()
	h, err := proto.ReadHeader(f.r)
	if err != nil {
		f.t.Fatalf("reading header: %v", err)
	}
	body := make([]byte, h.BodyLen())
	if _, err := io.ReadFull(f.r, body); err != nil {
		f.t.Fatalf("reading body: %v", err)
	}
	return h.Type, body
}

func (f *fakeBackend) expectTag(want byte, label string) []byte {
	f.t.Helper()
	tag, body := f.readTyped()
	if tag != want {
		f.t.Fatalf("expected %s (tag %q), got tag %q", label, want, tag)
	}
	return body
}

func (f *fakeBackend) readPasswordMessage() string {
	f.t.Helper()
	body := f.expectTag(proto.TagPassword, "PasswordMessage")
	r := proto.NewReader(body)
	pw := r.CString()
	if r.Err() != nil {
		f.t.Fatalf("decoding PasswordMessage: %v", r.Err())
	}
	return pw
}

func (f *fakeBackend) readQuery() string {
	f.t.Helper()
	body := f.expectTag(proto.TagQuery, "Query")
	r := proto.NewReader(body)
	sql := r.CString()
	if r.Err() != nil {
		f.t.Fatalf("decoding Query: %v", r.Err())
	}
	return sql
}

func (f *fakeBackend) sendAuthMD5(salt [4]byte) {
	b, err := proto.NewBuilder(proto.TagAuthentication).Int32(proto.AuthMD5Password).Bytes(salt[:]).Finish()
	if err != nil {
		f.t.Fatalf("building AuthenticationMD5Password: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendParseComplete() {
	b, err := proto.NewBuilder(proto.TagParseComplete).Finish()
	if err != nil {
		f.t.Fatalf("building ParseComplete: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendParameterDescription(oids []int32) {
	b := proto.NewBuilder(proto.TagParameterDescription)
	b.Int16(int16(len(oids)))
	for _, oid := range oids {
		b.Int32(oid)
	}
	body, err := b.Finish()
	if err != nil {
		f.t.Fatalf("building ParameterDescription: %v", err)
	}
	f.send(body)
}

func (f *fakeBackend) sendNoData() {
	b, err := proto.NewBuilder(proto.TagNoData).Finish()
	if err != nil {
		f.t.Fatalf("building NoData: %v", err)
	}
	f.send(b)
}

type rowCol struct {
	name string
	oid  int32
}

func (f *fakeBackend) sendRowDescription(cols []rowCol) {
	b := proto.NewBuilder(proto.TagRowDescription)
	b.Int16(int16(len(cols)))
	for _, c := range cols {
		b.CString(c.name).Int32(0).Int16(0).Int32(c.oid).Int16(-1).Int32(-1).Int16(0)
	}
	body, err := b.Finish()
	if err != nil {
		f.t.Fatalf("building RowDescription: %v", err)
	}
	f.send(body)
}

func (f *fakeBackend) sendBindComplete() {
	b, err := proto.NewBuilder(proto.TagBindComplete).Finish()
	if err != nil {
		f.t.Fatalf("building BindComplete: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendCloseComplete() {
	b, err := proto.NewBuilder(proto.TagCloseComplete).Finish()
	if err != nil {
		f.t.Fatalf("building CloseComplete: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendCommandComplete(tag string) {
	b, err := proto.NewBuilder(proto.TagCommandComplete).CString(tag).Finish()
	if err != nil {
		f.t.Fatalf("building CommandComplete: %v", err)
	}
	f.send(b)
}

func (f *fakeBackend) sendDataRow(cols [][]byte) {
	b := proto.NewBuilder(proto.TagDataRow)
	b.Int16(int16(len(cols)))
	for _, c := range cols {
		b.BytesLP(c)
	}
	body, err := b.Finish()
	if err != nil {
		f.t.Fatalf("building DataRow: %v", err)
	}
	f.send(body)
}

// TestNewConnMD5Handshake drives the MD5 auth path ([SUPPLEMENT] per
// SPEC_FULL.md, auth.go's computeMD5Password) over a net.Pipe, verifying
// the client hashes user/password/salt exactly as the server expects.
func TestNewConnMD5Handshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	backend := newFakeBackend(t, server)
	salt := [4]byte{0x01, 0x02, 0x03, 0x04}
	const user = "alice"
	const password = "s3cret"
	want := computeMD5Password(user, password, salt[:])

	done := make(chan struct{})
	go func() {
		defer close(done)
		backend.readStartup()
		backend.sendAuthMD5(salt)
		got := backend.readPasswordMessage()
		if got != want {
			t.Errorf("PasswordMessage = %q, want %q", got, want)
		}
		backend.sendAuthOK()
		backend.sendParameterStatus("server_version", "16.0")
		backend.sendBackendKeyData(1, 2)
		backend.sendReadyForQuery('I')
	}()

	opt := Options{User: user, Password: password, Database: "app"}
	conn, err := newConn(context.Background(), client, opt, nil, codec.NewRegistry(), NewChannelRegistry())
	if err != nil {
		t.Fatalf("newConn: %v", err)
	}
	defer conn.Close(nil)
	<-done
}

// TestConnFastExecuteRoundTrip drives a full prepare + fastExecute cycle
// (Parse/Describe/Sync, then Bind/Execute/Close/Sync) over a net.Pipe,
// verifying the client decodes a real DataRow/CommandComplete sequence
// into ExecResult.
func TestConnFastExecuteRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	backend := newFakeBackend(t, server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		backend.completeTrustHandshake()

		backend.expectTag(proto.TagParse, "Parse")
		backend.expectTag(proto.TagDescribe, "Describe")
		backend.expectTag(proto.TagSync, "Sync")
		backend.sendParseComplete()
		backend.sendParameterDescription(nil)
		backend.sendRowDescription([]rowCol{{name: "n", oid: codec.OIDInt4}})
		backend.sendReadyForQuery('I')

		backend.expectTag(proto.TagBind, "Bind")
		backend.expectTag(proto.TagExecute, "Execute")
		backend.expectTag(proto.TagClose, "Close")
		backend.expectTag(proto.TagSync, "Sync")
		backend.sendBindComplete()
		backend.sendDataRow([][]byte{[]byte("42")})
		backend.sendCommandComplete("SELECT 1")
		backend.sendCloseComplete()
		backend.sendReadyForQuery('I')
	}()

	opt := Options{User: "alice", Database: "app"}
	conn, err := newConn(context.Background(), client, opt, nil, codec.NewRegistry(), NewChannelRegistry())
	if err != nil {
		t.Fatalf("newConn: %v", err)
	}
	defer conn.Close(nil)

	st, err := conn.prepare(context.Background(), "SELECT 42")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	res, err := conn.fastExecute(context.Background(), st, nil, nil, nil)
	if err != nil {
		t.Fatalf("fastExecute: %v", err)
	}
	<-done

	if res.CommandTag != "SELECT 1" {
		t.Fatalf("CommandTag = %q, want %q", res.CommandTag, "SELECT 1")
	}
	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}
	if got := res.Rows[0].At(0); got != int64(42) {
		t.Fatalf("Rows[0].At(0) = %v (%T), want int64(42)", got, got)
	}
}

// TestConnTransactionCommit drives Begin/Commit through the simple-query
// (Query-message) path over a net.Pipe, verifying the savepoint stack is
// closed out on a successful commit.
func TestConnTransactionCommit(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	backend := newFakeBackend(t, server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		backend.completeTrustHandshake()

		if sql := backend.readQuery(); sql != "BEGIN" {
			t.Errorf("first Query = %q, want BEGIN", sql)
		}
		backend.sendCommandComplete("BEGIN")
		backend.sendReadyForQuery('T')

		if sql := backend.readQuery(); sql != "COMMIT" {
			t.Errorf("second Query = %q, want COMMIT", sql)
		}
		backend.sendCommandComplete("COMMIT")
		backend.sendReadyForQuery('I')
	}()

	opt := Options{User: "alice", Database: "app"}
	conn, err := newConn(context.Background(), client, opt, nil, codec.NewRegistry(), NewChannelRegistry())
	if err != nil {
		t.Fatalf("newConn: %v", err)
	}
	defer conn.Close(nil)

	sp, err := conn.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !sp.Open() {
		t.Fatalf("savepoint should be open after Begin")
	}
	if err := sp.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	<-done

	if sp.Open() {
		t.Fatalf("savepoint should be closed after Commit")
	}
	if conn.TxStatus() != 'I' {
		t.Fatalf("TxStatus() = %q, want 'I'", conn.TxStatus())
	}
}
