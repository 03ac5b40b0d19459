package fetcher

import (
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
)

var sessionSeq atomic.Int64

// Session is one simulated browser: a fingerprint, a cookie jar and a
// connection pool. It is owned by a single worker at a time.
type Session struct {
	ID          int64
	Fingerprint Fingerprint
	Requests    int
	Created     time.Time

	client *http.Client
}

func newSession(timeout time.Duration, transport http.RoundTripper, prev string) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: cookie jar")
	}
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &Session{
		ID:          sessionSeq.Add(1),
		Fingerprint: randomFingerprint(prev),
		Created:     time.Now(),
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			Jar:       jar,
		},
	}, nil
}

func (s *Session) close() {
	if t, ok := s.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
