package proto

import "fmt"

// Protocol-level constants from the v3 frontend/backend protocol.
const (
	ProtocolVersion  = int32(196608) // 3.0, encoded as (3<<16)|0
	CancelRequestCode = int32(80877102)
	SSLRequestCode    = int32(80877103)
)

// Backend message type tags.
const (
	TagAuthentication       = 'R'
	TagBackendKeyData       = 'K'
	TagBindComplete         = '2'
	TagCloseComplete        = '3'
	TagCommandComplete      = 'C'
	TagCopyData             = 'd'
	TagCopyDone             = 'c'
	TagCopyInResponse       = 'G'
	TagCopyOutResponse      = 'H'
	TagCopyBothResponse     = 'W'
	TagDataRow              = 'D'
	TagEmptyQueryResponse   = 'I'
	TagErrorResponse        = 'E'
	TagNegotiateProtocolVer = 'v'
	TagNoData               = 'n'
	TagNoticeResponse       = 'N'
	TagNotificationResponse = 'A'
	TagParameterDescription = 't'
	TagParameterStatus      = 'S'
	TagParseComplete        = '1'
	TagPortalSuspended      = 's'
	TagReadyForQuery        = 'Z'
	TagRowDescription       = 'T'
)

// Frontend message type tags.
const (
	TagBind               = 'B'
	TagClose              = 'C'
	TagCopyFail           = 'f'
	TagDescribe           = 'D'
	TagExecute            = 'E'
	TagFlush              = 'H'
	TagParse              = 'P'
	TagPassword           = 'p'
	TagQuery              = 'Q'
	TagSync               = 'S'
	TagTerminate          = 'X'
)

// Authentication status codes carried in Authentication's status field.
const (
	AuthOK                = int32(0)
	AuthKerberosV5        = int32(2)
	AuthCleartextPassword = int32(3)
	AuthMD5Password       = int32(5)
	AuthSCMCredential     = int32(6)
	AuthGSS               = int32(7)
	AuthGSSContinue       = int32(8)
	AuthSSPI              = int32(9)
	AuthSASL              = int32(10)
	AuthSASLContinue      = int32(11)
	AuthSASLFinal         = int32(12)
)

// --- Frontend messages -----------------------------------------------------

// Startup is the untyped first message on a new connection.
type Startup struct {
	Parameters map[string]string // user, database, and any runtime GUCs, in insertion order via Keys
	Keys       []string          // explicit ordering of Parameters, since map iteration is unordered
}

func (m Startup) Encode() ([]byte, error) {
	b := NewBuilder(0)
	b.Int32(ProtocolVersion)
	for _, k := range m.Keys {
		b.CString(k)
		b.CString(m.Parameters[k])
	}
	b.Byte(0)
	return b.Finish()
}

// CancelRequest is the untyped message sent on a fresh connection to abort
// an in-flight query on another connection sharing the same backend.
type CancelRequest struct {
	ProcessID int32
	SecretKey int32
}

func (m CancelRequest) Encode() ([]byte, error) {
	b := NewBuilder(0)
	b.Int32(CancelRequestCode)
	b.Int32(m.ProcessID)
	b.Int32(m.SecretKey)
	return b.Finish()
}

// PasswordMessage carries a cleartext or MD5-hashed password response.
type PasswordMessage struct {
	Password string
}

func (m PasswordMessage) Encode() ([]byte, error) {
	b := NewBuilder(TagPassword)
	b.CString(m.Password)
	return b.Finish()
}

// SASLInitialResponse begins a SASL exchange.
type SASLInitialResponse struct {
	Mechanism string
	Data      []byte
}

func (m SASLInitialResponse) Encode() ([]byte, error) {
	b := NewBuilder(TagPassword)
	b.CString(m.Mechanism)
	b.BytesLP(m.Data)
	return b.Finish()
}

// SASLResponse carries a subsequent SASL exchange message.
type SASLResponse struct {
	Data []byte
}

func (m SASLResponse) Encode() ([]byte, error) {
	b := NewBuilder(TagPassword)
	b.Bytes(m.Data)
	return b.Finish()
}

// Parse requests preparation of statement Name (empty for the unnamed
// statement) for Query, optionally pre-declaring ParamTypes OIDs.
type Parse struct {
	Statement  string
	Query      string
	ParamTypes []int32
}

func (m Parse) Encode() ([]byte, error) {
	b := NewBuilder(TagParse)
	b.CString(m.Statement)
	b.CString(m.Query)
	b.Int16(int16(len(m.ParamTypes)))
	for _, t := range m.ParamTypes {
		b.Int32(t)
	}
	return b.Finish()
}

// Bind binds Params to prepared Statement, creating Portal (empty for the
// unnamed portal). FormatCodes/ResultFormats of length 0 mean "all text", 1
// means "apply to all", or one-per-column/param.
type Bind struct {
	Portal        string
	Statement     string
	FormatCodes   []int16
	Params        [][]byte // nil entry encodes SQL NULL
	ResultFormats []int16
}

func (m Bind) Encode() ([]byte, error) {
	b := NewBuilder(TagBind)
	b.CString(m.Portal)
	b.CString(m.Statement)
	b.Int16(int16(len(m.FormatCodes)))
	for _, f := range m.FormatCodes {
		b.Int16(f)
	}
	b.Int16(int16(len(m.Params)))
	for _, p := range m.Params {
		b.BytesLP(p)
	}
	b.Int16(int16(len(m.ResultFormats)))
	for _, f := range m.ResultFormats {
		b.Int16(f)
	}
	return b.Finish()
}

// Describe asks the server to describe a statement ('S') or portal ('P').
type Describe struct {
	Which byte
	Name  string
}

func (m Describe) Encode() ([]byte, error) {
	b := NewBuilder(TagDescribe)
	b.Byte(m.Which)
	b.CString(m.Name)
	return b.Finish()
}

// Close closes a statement ('S') or portal ('P').
type Close struct {
	Which byte
	Name  string
}

func (m Close) Encode() ([]byte, error) {
	b := NewBuilder(TagClose)
	b.Byte(m.Which)
	b.CString(m.Name)
	return b.Finish()
}

// Execute runs Portal, stopping after RowLimit rows (0 means unlimited).
type Execute struct {
	Portal   string
	RowLimit int32
}

func (m Execute) Encode() ([]byte, error) {
	b := NewBuilder(TagExecute)
	b.CString(m.Portal)
	b.Int32(m.RowLimit)
	return b.Finish()
}

// Flush has no payload; it asks the server to flush its output buffer
// without a Sync boundary.
type Flush struct{}

func (m Flush) Encode() ([]byte, error) {
	return NewBuilder(TagFlush).Finish()
}

// Sync has no payload; it closes an extended-query pipeline, causing the
// server to emit ReadyForQuery.
type Sync struct{}

func (m Sync) Encode() ([]byte, error) {
	return NewBuilder(TagSync).Finish()
}

// Query sends a simple-query-protocol string, possibly containing multiple
// statements separated by semicolons.
type Query struct {
	SQL string
}

func (m Query) Encode() ([]byte, error) {
	b := NewBuilder(TagQuery)
	b.CString(m.SQL)
	return b.Finish()
}

// Terminate has no payload; it politely closes the connection.
type Terminate struct{}

func (m Terminate) Encode() ([]byte, error) {
	return NewBuilder(TagTerminate).Finish()
}

// CopyData carries one chunk of a COPY IN or COPY OUT stream. Shared by
// both directions.
type CopyData struct {
	Data []byte
}

func (m CopyData) Encode() ([]byte, error) {
	b := NewBuilder(TagCopyData)
	b.Bytes(m.Data)
	return b.Finish()
}

func DecodeCopyData(body []byte) (CopyData, error) {
	return CopyData{Data: append([]byte(nil), body...)}, nil
}

// CopyDone signals a clean end to a COPY IN stream (frontend) or is
// received to signal the end of a COPY OUT stream (backend). Shared tag.
type CopyDone struct{}

func (m CopyDone) Encode() ([]byte, error) {
	return NewBuilder(TagCopyDone).Finish()
}

// CopyFail aborts a COPY IN stream with a reason.
type CopyFail struct {
	Reason string
}

func (m CopyFail) Encode() ([]byte, error) {
	b := NewBuilder(TagCopyFail)
	b.CString(m.Reason)
	return b.Finish()
}

// --- Backend messages --------------------------------------------------

// Authentication carries an auth status and any mechanism-specific payload
// (SCRAM mechanism list for status=10, SASL continue/final data for
// status=11/12, MD5 salt for status=5).
type Authentication struct {
	Status  int32
	Payload []byte
}

func DecodeAuthentication(body []byte) (Authentication, error) {
	r := NewReader(body)
	status := r.Int32()
	rest := r.Remainder()
	if r.Err() != nil {
		return Authentication{}, r.Err()
	}
	return Authentication{Status: status, Payload: rest}, nil
}

// BackendKeyData carries the process ID and secret key used by
// CancelRequest.
type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}

func DecodeBackendKeyData(body []byte) (BackendKeyData, error) {
	r := NewReader(body)
	m := BackendKeyData{ProcessID: r.Int32(), SecretKey: r.Int32()}
	return m, r.Err()
}

type BindComplete struct{}

func DecodeBindComplete(body []byte) (BindComplete, error) { return BindComplete{}, nil }

type CloseComplete struct{}

func DecodeCloseComplete(body []byte) (CloseComplete, error) { return CloseComplete{}, nil }

// CommandComplete carries the server's summary tag, e.g. "INSERT 0 1".
type CommandComplete struct {
	Tag string
}

func DecodeCommandComplete(body []byte) (CommandComplete, error) {
	r := NewReader(body)
	m := CommandComplete{Tag: r.CString()}
	return m, r.Err()
}

// CopyResponse is shared shape for CopyInResponse/CopyOutResponse/
// CopyBothResponse, distinguished by the Tag the decoder was invoked with.
type CopyResponse struct {
	Tag            byte
	Format         int8
	ColumnFormats  []int16
}

func decodeCopyResponse(tag byte, body []byte) (CopyResponse, error) {
	r := NewReader(body)
	m := CopyResponse{Tag: tag}
	m.Format = r.Int8()
	n := r.Int16()
	m.ColumnFormats = make([]int16, n)
	for i := range m.ColumnFormats {
		m.ColumnFormats[i] = r.Int16()
	}
	return m, r.Err()
}

func DecodeCopyInResponse(body []byte) (CopyResponse, error) {
	return decodeCopyResponse(TagCopyInResponse, body)
}

func DecodeCopyOutResponse(body []byte) (CopyResponse, error) {
	return decodeCopyResponse(TagCopyOutResponse, body)
}

func DecodeCopyBothResponse(body []byte) (CopyResponse, error) {
	return decodeCopyResponse(TagCopyBothResponse, body)
}

// DataRow carries one row's worth of column values, each length-prefixed
// (nil meaning SQL NULL).
type DataRow struct {
	Columns [][]byte
}

func DecodeDataRow(body []byte) (DataRow, error) {
	r := NewReader(body)
	n := r.Int16()
	m := DataRow{Columns: make([][]byte, n)}
	for i := range m.Columns {
		m.Columns[i] = r.BytesLP()
	}
	return m, r.Err()
}

type EmptyQueryResponse struct{}

func DecodeEmptyQueryResponse(body []byte) (EmptyQueryResponse, error) {
	return EmptyQueryResponse{}, nil
}

// ErrorResponse carries the server's structured error fields, keyed by
// their single-byte field codes (S=severity, C=code, M=message, D=detail,
// H=hint, P=position, W=where, s=schema, t=table, c=column, d=datatype,
// n=constraint, F=file, L=line, R=routine).
type ErrorResponse struct {
	Fields map[byte]string
}

func decodeFieldedNotice(body []byte) (map[byte]string, error) {
	r := NewReader(body)
	fields := make(map[byte]string)
	for {
		code := r.Byte()
		if r.Err() != nil {
			return nil, r.Err()
		}
		if code == 0 {
			break
		}
		fields[code] = r.CString()
		if r.Err() != nil {
			return nil, r.Err()
		}
	}
	return fields, nil
}

func DecodeErrorResponse(body []byte) (ErrorResponse, error) {
	fields, err := decodeFieldedNotice(body)
	return ErrorResponse{Fields: fields}, err
}

// NoticeResponse has the identical wire shape to ErrorResponse but is
// informational, not fatal to the pipeline that triggered it.
type NoticeResponse struct {
	Fields map[byte]string
}

func DecodeNoticeResponse(body []byte) (NoticeResponse, error) {
	fields, err := decodeFieldedNotice(body)
	return NoticeResponse{Fields: fields}, err
}

// NegotiateProtocolVersion is sent if the server doesn't support the
// requested minor protocol version or requested protocol options.
type NegotiateProtocolVersion struct {
	NewestMinor    int32
	UnrecognizedOptions []string
}

func DecodeNegotiateProtocolVersion(body []byte) (NegotiateProtocolVersion, error) {
	r := NewReader(body)
	m := NegotiateProtocolVersion{NewestMinor: r.Int32()}
	n := r.Int32()
	m.UnrecognizedOptions = make([]string, n)
	for i := range m.UnrecognizedOptions {
		m.UnrecognizedOptions[i] = r.CString()
	}
	return m, r.Err()
}

type NoData struct{}

func DecodeNoData(body []byte) (NoData, error) { return NoData{}, nil }

// NotificationResponse is an asynchronous NOTIFY delivery.
type NotificationResponse struct {
	ProcessID int32
	Channel   string
	Payload   string
}

func DecodeNotificationResponse(body []byte) (NotificationResponse, error) {
	r := NewReader(body)
	m := NotificationResponse{
		ProcessID: r.Int32(),
		Channel:   r.CString(),
		Payload:   r.CString(),
	}
	return m, r.Err()
}

// ParameterDescription lists the inferred/declared OIDs for a prepared
// statement's parameters, returned from Describe('S', ...).
type ParameterDescription struct {
	OIDs []int32
}

func DecodeParameterDescription(body []byte) (ParameterDescription, error) {
	r := NewReader(body)
	n := r.Int16()
	m := ParameterDescription{OIDs: make([]int32, n)}
	for i := range m.OIDs {
		m.OIDs[i] = r.Int32()
	}
	return m, r.Err()
}

// ParameterStatus announces a GUC value, sent at startup and whenever the
// server changes one out of band (e.g. after SET or RESET ROLE).
type ParameterStatus struct {
	Name  string
	Value string
}

func DecodeParameterStatus(body []byte) (ParameterStatus, error) {
	r := NewReader(body)
	m := ParameterStatus{Name: r.CString(), Value: r.CString()}
	return m, r.Err()
}

type ParseComplete struct{}

func DecodeParseComplete(body []byte) (ParseComplete, error) { return ParseComplete{}, nil }

type PortalSuspended struct{}

func DecodePortalSuspended(body []byte) (PortalSuspended, error) { return PortalSuspended{}, nil }

// ReadyForQuery marks a pipeline boundary and carries the current
// transaction status: 'I' idle, 'T' in a transaction, 'E' in a failed
// transaction awaiting ROLLBACK.
type ReadyForQuery struct {
	TxStatus byte
}

func DecodeReadyForQuery(body []byte) (ReadyForQuery, error) {
	r := NewReader(body)
	m := ReadyForQuery{TxStatus: r.Byte()}
	return m, r.Err()
}

// FieldDescription describes one RowDescription column.
type FieldDescription struct {
	Name         string
	TableOID     int32
	ColumnAttNum int16
	TypeOID      int32
	TypeSize     int16
	TypeMod      int32
	FormatCode   int16
}

// RowDescription describes the shape of rows about to be sent via DataRow.
type RowDescription struct {
	Fields []FieldDescription
}

func DecodeRowDescription(body []byte) (RowDescription, error) {
	r := NewReader(body)
	n := r.Int16()
	m := RowDescription{Fields: make([]FieldDescription, n)}
	for i := range m.Fields {
		m.Fields[i] = FieldDescription{
			Name:         r.CString(),
			TableOID:     r.Int32(),
			ColumnAttNum: r.Int16(),
			TypeOID:      r.Int32(),
			TypeSize:     r.Int16(),
			TypeMod:      r.Int32(),
			FormatCode:   r.Int16(),
		}
	}
	return m, r.Err()
}

// DecodeBackend dispatches a backend message body to its typed decoder by
// tag, returning the decoded value as `any`. Engine code type-switches on
// the result.
func DecodeBackend(tag byte, body []byte) (any, error) {
	switch tag {
	case TagAuthentication:
		return DecodeAuthentication(body)
	case TagBackendKeyData:
		return DecodeBackendKeyData(body)
	case TagBindComplete:
		return DecodeBindComplete(body)
	case TagCloseComplete:
		return DecodeCloseComplete(body)
	case TagCommandComplete:
		return DecodeCommandComplete(body)
	case TagCopyData:
		return DecodeCopyData(body)
	case TagCopyDone:
		return CopyDone{}, nil
	case TagCopyInResponse:
		return DecodeCopyInResponse(body)
	case TagCopyOutResponse:
		return DecodeCopyOutResponse(body)
	case TagCopyBothResponse:
		return DecodeCopyBothResponse(body)
	case TagDataRow:
		return DecodeDataRow(body)
	case TagEmptyQueryResponse:
		return DecodeEmptyQueryResponse(body)
	case TagErrorResponse:
		return DecodeErrorResponse(body)
	case TagNegotiateProtocolVer:
		return DecodeNegotiateProtocolVersion(body)
	case TagNoData:
		return DecodeNoData(body)
	case TagNoticeResponse:
		return DecodeNoticeResponse(body)
	case TagNotificationResponse:
		return DecodeNotificationResponse(body)
	case TagParameterDescription:
		return DecodeParameterDescription(body)
	case TagParameterStatus:
		return DecodeParameterStatus(body)
	case TagParseComplete:
		return DecodeParseComplete(body)
	case TagPortalSuspended:
		return DecodePortalSuspended(body)
	case TagReadyForQuery:
		return DecodeReadyForQuery(body)
	case TagRowDescription:
		return DecodeRowDescription(body)
	default:
		return nil, fmt.Errorf("proto: unknown backend message tag %q", tag)
	}
}
