package scram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// mockServer plays the server half of the exchange against a Client,
// exercising the same full round trip the teacher's mockSCRAMBackend did
// against a net.Pipe, but at the message-payload level.
type mockServer struct {
	clientNonce string
	serverNonce string
	salt        []byte
	iterations  int
	authMessage string
	saltedPwd   []byte
}

func (s *mockServer) handleFirst(t *testing.T, clientFirstMsg []byte) string {
	t.Helper()
	bare := strings.TrimPrefix(string(clientFirstMsg), "n,,")
	for _, part := range strings.Split(bare, ",") {
		if strings.HasPrefix(part, "r=") {
			s.clientNonce = part[2:]
		}
	}
	s.serverNonce = s.clientNonce + "servernonce123"
	s.salt = []byte("randomsaltvalue!")
	s.iterations = 4096
	return fmt.Sprintf("r=%s,s=%s,i=%d", s.serverNonce, base64.StdEncoding.EncodeToString(s.salt), s.iterations)
}

func (s *mockServer) verifyFinal(clientFirstBare, serverFirstMsg, clientFinalMsg, password string) (string, bool) {
	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, s.serverNonce)
	s.authMessage = clientFirstBare + "," + serverFirstMsg + "," + clientFinalWithoutProof

	s.saltedPwd = pbkdf2.Key([]byte(password), s.salt, s.iterations, 32, sha256.New)
	clientKey := hmacSHA256(s.saltedPwd, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)
	clientSig := hmacSHA256(storedKey, []byte(s.authMessage))
	expectedProof := xorBytes(clientKey, clientSig)
	expectedProofB64 := base64.StdEncoding.EncodeToString(expectedProof)

	if !strings.Contains(clientFinalMsg, "p="+expectedProofB64) {
		return "", false
	}
	serverKey := hmacSHA256(s.saltedPwd, []byte("Server Key"))
	serverSig := hmacSHA256(serverKey, []byte(s.authMessage))
	return "v=" + base64.StdEncoding.EncodeToString(serverSig), true
}

func TestClientFullExchangeSuccess(t *testing.T) {
	client, err := NewClient("scramuser", "scrampass")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	srv := &mockServer{}
	serverFirst := srv.handleFirst(t, client.FirstMessage())

	clientFinal, err := client.ContinueResponse([]byte(serverFirst))
	if err != nil {
		t.Fatalf("ContinueResponse: %v", err)
	}

	serverFinal, ok := srv.verifyFinal(client.clientFirstBare, serverFirst, string(clientFinal), "scrampass")
	if !ok {
		t.Fatalf("server failed to verify client proof")
	}

	if err := client.FinalizeResponse([]byte(serverFinal)); err != nil {
		t.Fatalf("FinalizeResponse: %v", err)
	}
}

func TestClientWrongPasswordProofMismatch(t *testing.T) {
	client, err := NewClient("scramuser", "scrampass")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv := &mockServer{}
	serverFirst := srv.handleFirst(t, client.FirstMessage())

	clientFinal, err := client.ContinueResponse([]byte(serverFirst))
	if err != nil {
		t.Fatalf("ContinueResponse: %v", err)
	}

	_, ok := srv.verifyFinal(client.clientFirstBare, serverFirst, string(clientFinal), "wrongpass")
	if ok {
		t.Fatal("expected server-side proof verification to fail for wrong password")
	}
}

func TestClientRejectsBadServerSignature(t *testing.T) {
	client, err := NewClient("scramuser", "scrampass")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv := &mockServer{}
	serverFirst := srv.handleFirst(t, client.FirstMessage())
	if _, err := client.ContinueResponse([]byte(serverFirst)); err != nil {
		t.Fatalf("ContinueResponse: %v", err)
	}

	if err := client.FinalizeResponse([]byte("v=not-the-right-signature")); err == nil {
		t.Fatal("expected FinalizeResponse to reject a bad server signature")
	}
}

func TestContinueResponseRejectsBadServerNoncePrefix(t *testing.T) {
	client, err := NewClient("scramuser", "scrampass")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	salt := base64.StdEncoding.EncodeToString([]byte("salt1234salt5678"))
	serverFirst := fmt.Sprintf("r=totallydifferentnonce,s=%s,i=4096", salt)

	if _, err := client.ContinueResponse([]byte(serverFirst)); err == nil {
		t.Fatal("expected ContinueResponse to reject a server nonce not prefixed by the client nonce")
	}
}

func TestParseMechanisms(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []string
	}{
		{
			name: "single mechanism",
			data: append([]byte("SCRAM-SHA-256"), 0, 0),
			want: []string{"SCRAM-SHA-256"},
		},
		{
			name: "two mechanisms",
			data: append(append([]byte("SCRAM-SHA-256"), 0), append([]byte("SCRAM-SHA-256-PLUS"), 0, 0)...),
			want: []string{"SCRAM-SHA-256", "SCRAM-SHA-256-PLUS"},
		},
		{
			name: "empty",
			data: []byte{0},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMechanisms(tt.data)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseMechanisms() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseMechanisms()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
	if !SupportsMechanism([]string{"SCRAM-SHA-256"}) {
		t.Error("expected SupportsMechanism to find SCRAM-SHA-256")
	}
	if SupportsMechanism([]string{"GSSAPI"}) {
		t.Error("expected SupportsMechanism to reject an unsupported list")
	}
}

func TestEscapeUsername(t *testing.T) {
	if got := escapeUsername("user"); got != "user" {
		t.Errorf("escapeUsername(user) = %q, want unchanged", got)
	}
	if got := escapeUsername("us=er"); got != "us=3Der" {
		t.Errorf("escapeUsername(us=er) = %q, want us=3Der", got)
	}
	if got := escapeUsername("us,er"); got != "us=2Cer" {
		t.Errorf("escapeUsername(us,er) = %q, want us=2Cer", got)
	}
}

func TestParseServerFirst(t *testing.T) {
	salt := base64.StdEncoding.EncodeToString([]byte("somesalt"))
	msg := fmt.Sprintf("r=clientnonceservernonce,s=%s,i=4096", salt)

	nonce, saltBytes, iterations, err := parseServerFirst(msg)
	if err != nil {
		t.Fatalf("parseServerFirst: %v", err)
	}
	if nonce != "clientnonceservernonce" {
		t.Errorf("nonce = %q, want clientnonceservernonce", nonce)
	}
	if string(saltBytes) != "somesalt" {
		t.Errorf("salt = %q, want somesalt", saltBytes)
	}
	if iterations != 4096 {
		t.Errorf("iterations = %d, want 4096", iterations)
	}
}

func TestParseServerFirstIncomplete(t *testing.T) {
	if _, _, _, err := parseServerFirst("r=onlynonce"); err == nil {
		t.Fatal("expected error for incomplete server-first-message")
	}
}

func TestXorBytes(t *testing.T) {
	a := []byte{0xff, 0x00, 0xaa}
	b := []byte{0x0f, 0xf0, 0x55}
	want := []byte{0xf0, 0xf0, 0xff}
	got := xorBytes(a, b)
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("xorBytes[%d] = 0x%02x, want 0x%02x", i, got[i], want[i])
		}
	}
}

func TestHMACSHA256(t *testing.T) {
	key, data := []byte("key"), []byte("data")
	got := hmacSHA256(key, data)
	h := hmac.New(sha256.New, key)
	h.Write(data)
	want := h.Sum(nil)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("hmacSHA256[%d] = 0x%02x, want 0x%02x", i, got[i], want[i])
		}
	}
}
