package sigv4gate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureAlgorithm = "AWS4-HMAC-SHA256"
	MaxExpiresSeconds  = 604800 // 7 days
	DateTimeFormat     = "20060102T150405Z"
	DateFormat         = "20060102"
	UnsignedPayload    = "UNSIGNED-PAYLOAD"
)

const (
	credentialTerminator = "aws4_request"

	headerAuthorization = "Authorization"
	headerAmzDate       = "X-Amz-Date"
	headerContentSHA256 = "X-Amz-Content-Sha256"
	headerSecurityToken = "X-Amz-Security-Token"
)

// VerifyRequest is everything a Verifier needs to authenticate one request:
// the header part of the HTTP request, the fully materialized body and the
// interceptor configuration.
type VerifyRequest struct {
	Method        string
	URL           *url.URL
	Host          string
	Header        http.Header
	ContentLength int64
	Body          []byte

	Region      string
	Service     string
	KeyKind     SigningKeyKind
	Keys        KeyLookup
	AllowedSkew time.Duration
}

// NewVerifyRequest builds a VerifyRequest from r and an already drained body.
// r.Body is not touched.
func NewVerifyRequest(r *http.Request, body []byte, cfg AuthConfig, keys KeyLookup) *VerifyRequest {
	cfg = cfg.WithDefaults()
	return &VerifyRequest{
		Method:        r.Method,
		URL:           r.URL,
		Host:          r.Host,
		Header:        r.Header,
		ContentLength: r.ContentLength,
		Body:          body,
		Region:        cfg.Region,
		Service:       cfg.Service,
		KeyKind:       cfg.SigningKeyKind,
		Keys:          keys,
		AllowedSkew:   cfg.AllowedClockSkew,
	}
}

// Verifier authenticates a request and returns the caller's Principal.
// Failures wrap one of the ErrUnauthorized reason errors.
type Verifier interface {
	Verify(ctx context.Context, req *VerifyRequest) (Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req *VerifyRequest) (Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, req *VerifyRequest) (Principal, error) {
	return f(ctx, req)
}

// SigV4Verifier verifies AWS Signature Version 4 requests signed either with
// an Authorization header or as a presigned URL.
type SigV4Verifier struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func NewSigV4Verifier() *SigV4Verifier {
	return &SigV4Verifier{Now: time.Now}
}

func (v *SigV4Verifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

// Verify checks the SigV4 signature of req.
//
// Header authentication expects:
//   - Authorization: AWS4-HMAC-SHA256 Credential=AK/date/region/service/aws4_request, SignedHeaders=..., Signature=...
//   - X-Amz-Date: ISO8601 timestamp (YYYYMMDDTHHMMSSZ), within AllowedSkew of now
//   - X-Amz-Content-Sha256 (optional): UNSIGNED-PAYLOAD or the hex SHA-256 of the body
//
// Presigned URLs carry X-Amz-Algorithm, X-Amz-Credential, X-Amz-Date,
// X-Amz-Expires, X-Amz-SignedHeaders and X-Amz-Signature in the query and are
// valid from X-Amz-Date (minus AllowedSkew) until X-Amz-Date plus X-Amz-Expires.
//
// The signing key comes from req.Keys at the stage req.KeyKind; the remaining
// derivation steps are computed here.
func (v *SigV4Verifier) Verify(ctx context.Context, req *VerifyRequest) (Principal, error) {
	if req.Keys == nil {
		return Principal{}, fmt.Errorf("no key lookup configured: %w", ErrUnknownSigningKey)
	}

	params, err := extractParams(req)
	if err != nil {
		return Principal{}, err
	}

	if err := v.validateParams(params, req); err != nil {
		return Principal{}, err
	}

	payloadHash, err := resolvePayloadHash(params.presigned, req.Header, req.Body)
	if err != nil {
		return Principal{}, err
	}

	kind := req.KeyKind
	if kind == "" {
		kind = KSigning
	}

	key, principal, err := req.Keys.LookupSigningKey(ctx, KeyRequest{
		Kind:         kind,
		AccessKey:    params.accessKey,
		SessionToken: params.sessionToken,
		Date:         params.requestTime,
		Region:       params.region,
		Service:      params.service,
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("lookup signing key: %w: %w", ErrUnknownSigningKey, err)
	}

	signingKey := completeSigningKey(kind, key, params.dateStamp, params.region, params.service)

	canonicalRequest := buildCanonicalRequest(req, params, payloadHash)
	stringToSign := buildStringToSign(params.requestTime, params.credentialScope(), canonicalRequest)
	expectedSignature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	if !hmac.Equal([]byte(expectedSignature), []byte(params.signature)) {
		return Principal{}, fmt.Errorf("access key %s: %w", params.accessKey, ErrSignatureMismatch)
	}

	return principal, nil
}

type signatureParams struct {
	presigned     bool
	algorithm     string
	accessKey     string
	dateStamp     string
	region        string
	service       string
	requestTime   time.Time
	expires       int
	signedHeaders string
	signature     string
	sessionToken  string
}

func (p *signatureParams) credentialScope() string {
	return fmt.Sprintf("%s/%s/%s/%s", p.dateStamp, p.region, p.service, credentialTerminator)
}

func extractParams(req *VerifyRequest) (*signatureParams, error) {
	auth := req.Header.Get(headerAuthorization)

	switch {
	case strings.HasPrefix(auth, SignatureAlgorithm+" "):
		return extractHeaderParams(auth, req.Header)
	case auth != "":
		return nil, fmt.Errorf("unsupported authorization scheme: %w", ErrMalformedSignature)
	case req.URL != nil && req.URL.Query().Get("X-Amz-Algorithm") != "":
		return extractQueryParams(req.URL.Query())
	default:
		return nil, fmt.Errorf("missing signature: %w", ErrMalformedSignature)
	}
}

func extractHeaderParams(auth string, headers http.Header) (*signatureParams, error) {
	fields := make(map[string]string, 3)
	for _, part := range strings.Split(strings.TrimPrefix(auth, SignatureAlgorithm+" "), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("invalid Authorization header component %q: %w", part, ErrMalformedSignature)
		}
		fields[k] = v
	}

	credential := fields["Credential"]
	signedHeaders := fields["SignedHeaders"]
	signature := fields["Signature"]
	if credential == "" || signedHeaders == "" || signature == "" {
		return nil, fmt.Errorf("missing required Authorization components: %w", ErrMalformedSignature)
	}

	amzDate := headers.Get(headerAmzDate)
	if amzDate == "" {
		return nil, fmt.Errorf("missing %s header: %w", headerAmzDate, ErrMalformedSignature)
	}

	params := &signatureParams{
		algorithm:     SignatureAlgorithm,
		signedHeaders: signedHeaders,
		signature:     signature,
		sessionToken:  headers.Get(headerSecurityToken),
	}

	if err := params.setDate(amzDate); err != nil {
		return nil, err
	}
	if err := params.setCredential(credential); err != nil {
		return nil, err
	}

	return params, nil
}

func extractQueryParams(query url.Values) (*signatureParams, error) {
	amzAlgorithm := query.Get("X-Amz-Algorithm")
	amzCredential := query.Get("X-Amz-Credential")
	amzDate := query.Get("X-Amz-Date")
	amzExpires := query.Get("X-Amz-Expires")
	amzSignedHeaders := query.Get("X-Amz-SignedHeaders")
	amzSignature := query.Get("X-Amz-Signature")

	if amzAlgorithm == "" || amzCredential == "" || amzDate == "" ||
		amzExpires == "" || amzSignedHeaders == "" || amzSignature == "" {
		return nil, fmt.Errorf("missing required signature parameters: %w", ErrMalformedSignature)
	}

	expires, err := strconv.Atoi(amzExpires)
	if err != nil || expires <= 0 || expires > MaxExpiresSeconds {
		return nil, fmt.Errorf("invalid X-Amz-Expires: must be between 1 and %d: %w", MaxExpiresSeconds, ErrMalformedSignature)
	}

	params := &signatureParams{
		presigned:     true,
		algorithm:     amzAlgorithm,
		expires:       expires,
		signedHeaders: amzSignedHeaders,
		signature:     amzSignature,
		sessionToken:  query.Get(headerSecurityToken),
	}

	if err := params.setDate(amzDate); err != nil {
		return nil, err
	}
	if err := params.setCredential(amzCredential); err != nil {
		return nil, err
	}

	return params, nil
}

func (p *signatureParams) setDate(amzDate string) error {
	requestTime, err := time.Parse(DateTimeFormat, amzDate)
	if err != nil {
		return fmt.Errorf("invalid X-Amz-Date format: %w", ErrMalformedSignature)
	}
	p.requestTime = requestTime
	return nil
}

func (p *signatureParams) setCredential(credential string) error {
	credParts := strings.Split(credential, "/")
	if len(credParts) != 5 {
		return fmt.Errorf("invalid credential format: %w", ErrMalformedSignature)
	}

	if credParts[4] != credentialTerminator {
		return fmt.Errorf("invalid credential terminator: expected %s: %w", credentialTerminator, ErrMalformedSignature)
	}

	if credParts[0] == "" {
		return fmt.Errorf("empty access key: %w", ErrMalformedSignature)
	}

	p.accessKey = credParts[0]
	p.dateStamp = credParts[1]
	p.region = credParts[2]
	p.service = credParts[3]
	return nil
}

func (v *SigV4Verifier) validateParams(params *signatureParams, req *VerifyRequest) error {
	if params.algorithm != SignatureAlgorithm {
		return fmt.Errorf("invalid algorithm: expected %s, got %s: %w", SignatureAlgorithm, params.algorithm, ErrMalformedSignature)
	}

	if params.dateStamp != params.requestTime.Format(DateFormat) {
		return fmt.Errorf("credential date mismatch: %w", ErrMalformedSignature)
	}

	if !containsHeader(params.signedHeaders, "host") {
		return fmt.Errorf("host is not a signed header: %w", ErrMalformedSignature)
	}

	if params.region != req.Region {
		return fmt.Errorf("region mismatch: expected %s, got %s: %w", req.Region, params.region, ErrSignatureMismatch)
	}

	if params.service != req.Service {
		return fmt.Errorf("service mismatch: expected %s, got %s: %w", req.Service, params.service, ErrSignatureMismatch)
	}

	skew := req.AllowedSkew
	if skew <= 0 {
		skew = DefaultAllowedClockSkew
	}

	now := v.now()
	if params.requestTime.Sub(now) > skew {
		return fmt.Errorf("request time %s is in the future: %w", params.requestTime.Format(DateTimeFormat), ErrClockSkew)
	}

	if params.presigned {
		if now.After(params.requestTime.Add(time.Duration(params.expires) * time.Second)) {
			return fmt.Errorf("signature expired: %w", ErrClockSkew)
		}
		return nil
	}

	if now.Sub(params.requestTime) > skew {
		return fmt.Errorf("request time %s is too old: %w", params.requestTime.Format(DateTimeFormat), ErrClockSkew)
	}

	return nil
}

func containsHeader(signedHeaders, name string) bool {
	for _, h := range strings.Split(signedHeaders, ";") {
		if h == name {
			return true
		}
	}
	return false
}

// resolvePayloadHash returns the payload hash that goes into the canonical
// request. A declared X-Amz-Content-Sha256 must match the body.
func resolvePayloadHash(presigned bool, headers http.Header, body []byte) (string, error) {
	declared := headers.Get(headerContentSHA256)

	switch {
	case declared == "" && presigned:
		return UnsignedPayload, nil
	case declared == "":
		return sha256Hex(body), nil
	case declared == UnsignedPayload:
		return declared, nil
	case strings.HasPrefix(declared, "STREAMING-"):
		return "", fmt.Errorf("streaming payload signatures are not supported: %w", ErrMalformedSignature)
	case declared != sha256Hex(body):
		return "", fmt.Errorf("payload hash mismatch: %w", ErrSignatureMismatch)
	default:
		return declared, nil
	}
}

func buildCanonicalRequest(req *VerifyRequest, params *signatureParams, payloadHash string) string {
	return strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQueryString(req.URL, params.presigned),
		buildCanonicalHeaders(req, params.signedHeaders),
		params.signedHeaders,
		payloadHash,
	}, "\n")
}

func canonicalURI(u *url.URL) string {
	path := "/"
	if u != nil {
		if p := u.EscapedPath(); p != "" {
			path = p
		}
	}
	return escapePath(path)
}

// escapePath percent-encodes every byte outside the unreserved set, keeping '/'.
// An already escaped path is escaped a second time, as SigV4 requires.
func escapePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func canonicalQueryString(u *url.URL, presigned bool) string {
	if u == nil {
		return ""
	}
	query := u.Query()
	if presigned {
		query.Del("X-Amz-Signature")
	}
	return strings.ReplaceAll(query.Encode(), "+", "%20")
}

// buildCanonicalHeaders builds the canonical headers string from the signed headers list.
// Each entry is formatted as "name:value\n" in the order the client signed them.
func buildCanonicalHeaders(req *VerifyRequest, signedHeaders string) string {
	var result strings.Builder
	for _, name := range strings.Split(signedHeaders, ";") {
		var values []string
		switch name {
		case "host":
			host := req.Host
			if host == "" && req.URL != nil {
				host = req.URL.Host
			}
			values = []string{host}
		case "content-length":
			values = req.Header.Values(name)
			if len(values) == 0 && req.ContentLength >= 0 {
				values = []string{strconv.FormatInt(req.ContentLength, 10)}
			}
		default:
			values = req.Header.Values(name)
		}

		result.WriteString(name)
		result.WriteString(":")
		for i, v := range values {
			if i > 0 {
				result.WriteString(",")
			}
			result.WriteString(stripExcessSpaces(v))
		}
		result.WriteString("\n")
	}
	return result.String()
}

// stripExcessSpaces trims v and collapses runs of spaces into one.
func stripExcessSpaces(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

func buildStringToSign(requestTime time.Time, credentialScope, canonicalRequest string) string {
	return strings.Join([]string{
		SignatureAlgorithm,
		requestTime.UTC().Format(DateTimeFormat),
		credentialScope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
