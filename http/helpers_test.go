package http_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigv4gate"
	sigv4gatehttp "github.com/sagarc03/sigv4gate/http"
	"github.com/sagarc03/sigv4gate/keybackend"
)

const (
	testRegion  = "us-east-1"
	testService = "execute-api"
)

var testKeyPairs = map[string]string{
	"AKIAALICE": "alice-secret",
	"AKIABOB":   "bob-secret",
}

func testKeys() sigv4gate.KeyLookup {
	return sigv4gate.NewStoreKeyLookup(keybackend.NewMapSecretStore(testKeyPairs))
}

func testConfig() sigv4gate.AuthConfig {
	return sigv4gate.NewAuthConfig(testRegion, testService)
}

func creds(accessKey string) aws.Credentials {
	return aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: testKeyPairs[accessKey]}
}

// signedRequest builds a request for target signed by accessKey over body.
func signedRequest(t *testing.T, method, target, accessKey string, body []byte) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	sum := sha256.Sum256(body)
	err := v4.NewSigner().SignHTTP(context.Background(), creds(accessKey), req,
		hex.EncodeToString(sum[:]), testService, testRegion, time.Now())
	require.NoError(t, err)
	return req
}

// seen is what a recordingService observed on its last call.
type seen struct {
	body      []byte
	principal sigv4gate.Principal
	ok        bool
	length    int64
}

// recordingService echoes the request body and records what it saw.
type recordingService struct {
	calls    atomic.Int32
	last     atomic.Pointer[seen]
	readyErr error
}

func (s *recordingService) Ready() error { return s.readyErr }

func (s *recordingService) Call(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	p, ok := sigv4gatehttp.PrincipalFromContext(req.Context())
	s.last.Store(&seen{body: body, principal: p, ok: ok, length: req.ContentLength})

	header := make(http.Header)
	header.Set("X-Principal", p.AccessKey)
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

func newInterceptor(t *testing.T, next sigv4gatehttp.Service, opts ...sigv4gatehttp.Option) *sigv4gatehttp.Interceptor {
	t.Helper()
	i, err := sigv4gatehttp.NewInterceptor(testConfig(), testKeys(), next, opts...)
	require.NoError(t, err)
	return i
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
