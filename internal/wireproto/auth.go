package wireproto

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/jkantaria/pglue/internal/proto"
	"github.com/jkantaria/pglue/internal/scram"
)

// authenticate sends the startup message and drives the authentication
// exchange to ReadyForQuery, dispatching on Authentication status per
// spec.md §4.2/§4.3 "Connect/reconnect". Supported mechanisms: trust
// (status 0), cleartext (3), MD5 (5, [SUPPLEMENT] — see SPEC_FULL.md),
// and SASL SCRAM-SHA-256 (10/11/12). All other statuses
// (Kerberos/GSS/SSPI) are hard errors per spec.md §1 Non-goals.
func (c *Conn) authenticate(ctx context.Context) error {
	params, order := startupParams(c.opt)
	startup := proto.Startup{Parameters: params, Keys: order}
	if err := c.encodeAndSend(startup); err != nil {
		return wireErr("startup", err)
	}

	for {
		msg, err := c.recv()
		if err != nil {
			return wireErr("authenticate", err)
		}
		switch m := msg.(type) {
		case proto.Authentication:
			if err := c.handleAuthMessage(m); err != nil {
				return err
			}
		case proto.ParameterStatus:
			// readLoop's filterAsync consumes every ParameterStatus
			// before it reaches the inbox, so recv() does not return
			// one; this case only applies the same bookkeeping
			// defensively.
			c.mu.Lock()
			if _, ok := c.serverParams[m.Name]; !ok {
				c.paramOrder = append(c.paramOrder, m.Name)
			}
			c.serverParams[m.Name] = m.Value
			c.mu.Unlock()
		case proto.BackendKeyData:
			c.backendPID = m.ProcessID
			c.backendKey = m.SecretKey
		case proto.ReadyForQuery:
			c.setTxStatus(m.TxStatus)
			return nil
		case proto.ErrorResponse:
			return &PgError{WireError: &WireError{Op: "authenticate", Err: fmt.Errorf("%s", m.Fields[byte('M')])}, Fields: m.Fields}
		case proto.NegotiateProtocolVersion:
			// Accept and continue; we only ever request the baseline
			// options the server is guaranteed to understand.
		default:
			return wireErr("authenticate", fmt.Errorf("unexpected message %T during startup", m))
		}
	}
}

func (c *Conn) handleAuthMessage(m proto.Authentication) error {
	switch m.Status {
	case proto.AuthOK:
		return nil
	case proto.AuthCleartextPassword:
		return c.encodeAndSend(proto.PasswordMessage{Password: c.opt.Password})
	case proto.AuthMD5Password:
		if len(m.Payload) < 4 {
			return wireErr("authenticate", fmt.Errorf("MD5 auth payload too short"))
		}
		salt := m.Payload[:4]
		hashed := computeMD5Password(c.opt.User, c.opt.Password, salt)
		return c.encodeAndSend(proto.PasswordMessage{Password: hashed})
	case proto.AuthSASL:
		return c.runSCRAM(m.Payload)
	case proto.AuthKerberosV5, proto.AuthSCMCredential, proto.AuthGSS, proto.AuthGSSContinue, proto.AuthSSPI:
		return wireErr("authenticate", fmt.Errorf("unsupported authentication mechanism (status %d)", m.Status))
	default:
		return wireErr("authenticate", fmt.Errorf("unknown authentication status %d", m.Status))
	}
}

// computeMD5Password implements PostgreSQL's md5(md5(password+user)+salt)
// password hash, [SUPPLEMENT]-added per SPEC_FULL.md (grounded on the
// teacher's pool.go computeMD5Password).
func computeMD5Password(user, password string, salt []byte) string {
	h1 := md5.Sum([]byte(password + user))
	hex1 := hex.EncodeToString(h1[:])
	h2 := md5.Sum(append([]byte(hex1), salt...))
	return "md5" + hex.EncodeToString(h2[:])
}

// runSCRAM drives the SCRAM-SHA-256 exchange (spec.md §4.2) using
// internal/scram's message-level client, reading the subsequent
// Authentication(11)/Authentication(12) messages directly from the
// connection (these arrive before ReadyForQuery, outside any pipeline).
func (c *Conn) runSCRAM(saslPayload []byte) error {
	mechs := scram.ParseMechanisms(saslPayload)
	if !scram.SupportsMechanism(mechs) {
		return wireErr("authenticate", fmt.Errorf("server does not support SCRAM-SHA-256, offered: %v", mechs))
	}

	client, err := scram.NewClient(c.opt.User, c.opt.Password)
	if err != nil {
		return wireErr("authenticate", err)
	}

	if err := c.encodeAndSend(proto.SASLInitialResponse{
		Mechanism: scram.Mechanism,
		Data:      client.FirstMessage(),
	}); err != nil {
		return wireErr("authenticate", err)
	}

	contMsg, err := c.recv()
	if err != nil {
		return wireErr("authenticate", err)
	}
	cont, ok := contMsg.(proto.Authentication)
	if !ok || cont.Status != proto.AuthSASLContinue {
		return wireErr("authenticate", fmt.Errorf("expected AuthenticationSASLContinue, got %T", contMsg))
	}

	clientFinal, err := client.ContinueResponse(cont.Payload)
	if err != nil {
		return wireErr("authenticate", err)
	}

	if err := c.encodeAndSend(proto.SASLResponse{Data: clientFinal}); err != nil {
		return wireErr("authenticate", err)
	}

	finalMsg, err := c.recv()
	if err != nil {
		return wireErr("authenticate", err)
	}
	final, ok := finalMsg.(proto.Authentication)
	if !ok || final.Status != proto.AuthSASLFinal {
		return wireErr("authenticate", fmt.Errorf("expected AuthenticationSASLFinal, got %T", finalMsg))
	}

	return client.FinalizeResponse(final.Payload)
}
