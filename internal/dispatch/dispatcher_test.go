package dispatch_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/action-gateway/internal/dispatch"
)

func server(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestCall_Success(t *testing.T) {
	var gotHeader, gotBody string
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"ok":true}`))
	})

	d := dispatch.New()
	resp, err := d.Call(context.Background(), dispatch.Request{
		Target:  "svc",
		URL:     srv.URL,
		Payload: []byte(`{"q":1}`),
		Headers: http.Header{"X-Test": []string{"yes"}},
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, `{"q":1}`, gotBody)
	assert.GreaterOrEqual(t, resp.Latency, time.Duration(0))
}

func TestCall_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
		code      string
	}{
		{http.StatusInternalServerError, true, dispatch.CodeServerError},
		{http.StatusBadGateway, true, dispatch.CodeServerError},
		{http.StatusServiceUnavailable, true, dispatch.CodeServerError},
		{http.StatusTooManyRequests, true, dispatch.CodeRateLimited},
		{http.StatusRequestTimeout, true, dispatch.CodeTimeout},
		{http.StatusBadRequest, false, dispatch.CodeClientError},
		{http.StatusNotFound, false, dispatch.CodeClientError},
		{http.StatusUnauthorized, false, dispatch.CodeAuth},
		{http.StatusForbidden, false, dispatch.CodeAuth},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := server(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := dispatch.New().Call(context.Background(), dispatch.Request{Target: "p", URL: srv.URL, Timeout: time.Second})
			require.Error(t, err)
			assert.Equal(t, tt.transient, dispatch.IsTransient(err))
			assert.Equal(t, !tt.transient, dispatch.IsPermanent(err))

			if tt.transient {
				var te *dispatch.TransientError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, tt.code, te.Code)
				assert.Equal(t, tt.status, te.StatusCode)
			} else {
				var pe *dispatch.PermanentError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, tt.code, pe.Code)
			}
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestCall_MalformedPayloadIsPermanent(t *testing.T) {
	for name, body := range map[string]string{
		"html":  "<html>oops</html>",
		"empty": "",
		"cut":   `{"sources":[`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := server(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, err := dispatch.New().Call(context.Background(), dispatch.Request{Target: "svc", URL: srv.URL, Timeout: time.Second})
			require.Error(t, err)

			var pe *dispatch.PermanentError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, dispatch.CodeMalformedPayload, pe.Code)
		})
	}
}

func TestCall_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := dispatch.New().Call(context.Background(), dispatch.Request{Target: "slow", URL: srv.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var te *dispatch.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatch.CodeTimeout, te.Code)
	assert.GreaterOrEqual(t, dispatch.LatencyOf(err), 50*time.Millisecond)
}

func TestCall_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := dispatch.New().Call(context.Background(), dispatch.Request{Target: "gone", URL: url, Timeout: time.Second})
	require.Error(t, err)

	var te *dispatch.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatch.CodeConnection, te.Code)
}

func TestCall_CallerCancelIsReported(t *testing.T) {
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := dispatch.New().Call(ctx, dispatch.Request{Target: "p", URL: srv.URL, Timeout: 5 * time.Second})
	var te *dispatch.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, dispatch.CodeCanceled, te.Code)
}

func TestCall_InvalidURLIsPermanent(t *testing.T) {
	_, err := dispatch.New().Call(context.Background(), dispatch.Request{Target: "p", URL: "://bad"})
	assert.True(t, dispatch.IsPermanent(err))
}

func TestCall_TargetClientOverride(t *testing.T) {
	var hits atomic.Int32
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	counting := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hits.Add(1)
		return http.DefaultTransport.RoundTrip(r)
	})}

	d := dispatch.New(dispatch.WithTargetClient("special", counting))
	_, err := d.Call(context.Background(), dispatch.Request{Target: "special", URL: srv.URL})
	require.NoError(t, err)
	_, err = d.Call(context.Background(), dispatch.Request{Target: "other", URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCall_RateLimitHonoursDeadline(t *testing.T) {
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	d := dispatch.New(dispatch.WithRateLimit("p", 0.5)) // burst 1, then one call every 2s

	_, err := d.Call(context.Background(), dispatch.Request{Target: "p", URL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	_, err = d.Call(context.Background(), dispatch.Request{Target: "p", URL: srv.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, dispatch.IsTransient(err))
}

func TestSigningTransport_SignsRequests(t *testing.T) {
	var auth, date string
	var body string
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		date = r.Header.Get("X-Amz-Date")
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Write([]byte(`{}`))
	})

	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
	})
	client := &http.Client{Transport: dispatch.NewSigningTransport(creds, "us-west-2", nil)}

	d := dispatch.New(dispatch.WithTargetClient("bedrock", client))
	_, err := d.Call(context.Background(), dispatch.Request{Target: "bedrock", URL: srv.URL, Payload: []byte(`{"a":1}`)})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/"), auth)
	assert.Contains(t, auth, "/us-west-2/bedrock/aws4_request")
	assert.NotEmpty(t, date)
	assert.Equal(t, `{"a":1}`, body)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
