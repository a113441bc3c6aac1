// Package scram implements the client side of SASL SCRAM-SHA-256
// authentication (RFC 5802) against a PostgreSQL backend, driven by
// decoded wire messages rather than a raw socket so it can be exercised
// without a live server.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Mechanism is the only SASL mechanism this client offers, matching
// spec.md §4.2.
const Mechanism = "SCRAM-SHA-256"

// Client drives one SCRAM-SHA-256 exchange. It is single-use: construct a
// fresh Client per authentication attempt.
type Client struct {
	user     string
	password string

	clientNonce      string
	gs2Header        string
	clientFirstBare  string
	serverFirstMsg   string
	saltedPassword   []byte
	authMessage      string
}

// NewClient prepares a client-first-message for user/password. It does not
// perform any I/O.
func NewClient(user, password string) (*Client, error) {
	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("scram: generating nonce: %w", err)
	}
	c := &Client{
		user:        user,
		password:    password,
		clientNonce: base64.StdEncoding.EncodeToString(nonceBytes),
		gs2Header:   "n,,",
	}
	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", escapeUsername(user), c.clientNonce)
	return c, nil
}

// FirstMessage returns the client-first-message to send inside a
// SASLInitialResponse (gs2-header prepended to client-first-message-bare).
func (c *Client) FirstMessage() []byte {
	return []byte(c.gs2Header + c.clientFirstBare)
}

// SupportsMechanism reports whether the server's advertised mechanism list
// (NUL-separated, as decoded from the AuthenticationSASL payload) includes
// SCRAM-SHA-256.
func SupportsMechanism(mechanisms []string) bool {
	for _, m := range mechanisms {
		if m == Mechanism {
			return true
		}
	}
	return false
}

// ParseMechanisms splits the NUL-terminated mechanism list carried in an
// AuthenticationSASL payload (after the 4-byte status field has already
// been stripped by the message decoder).
func ParseMechanisms(data []byte) []string {
	var mechs []string
	for len(data) > 0 {
		idx := 0
		for idx < len(data) && data[idx] != 0 {
			idx++
		}
		if idx > 0 {
			mechs = append(mechs, string(data[:idx]))
		}
		if idx >= len(data) {
			break
		}
		data = data[idx+1:]
	}
	return mechs
}

// ContinueResponse processes the AuthenticationSASLContinue payload
// (server-first-message) and returns the client-final-message to send
// inside a SASLResponse.
func (c *Client) ContinueResponse(serverFirstPayload []byte) ([]byte, error) {
	c.serverFirstMsg = string(serverFirstPayload)

	serverNonce, salt, iterations, err := parseServerFirst(c.serverFirstMsg)
	if err != nil {
		return nil, fmt.Errorf("scram: parsing server-first-message: %w", err)
	}
	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return nil, fmt.Errorf("scram: server nonce does not start with client nonce")
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, 32, sha256.New)
	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(c.gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, serverNonce)

	c.authMessage = c.clientFirstBare + "," + c.serverFirstMsg + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	final := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(final), nil
}

// FinalizeResponse verifies the AuthenticationSASLFinal payload's server
// signature (v=...) against the one this client computes, completing the
// exchange.
func (c *Client) FinalizeResponse(serverFinalPayload []byte) error {
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expectedSig := hmacSHA256(serverKey, []byte(c.authMessage))
	expected := "v=" + base64.StdEncoding.EncodeToString(expectedSig)
	if string(serverFinalPayload) != expected {
		return fmt.Errorf("scram: server signature mismatch")
	}
	return nil
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("decoding salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("parsing iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("incomplete server-first-message: %q", msg)
	}
	return nonce, salt, iterations, nil
}

// escapeUsername replaces "=" with "=3D" and "," with "=2C" per RFC 5802.
func escapeUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	user = strings.ReplaceAll(user, ",", "=2C")
	return user
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
