package httpserver

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerRoutesToHandler(t *testing.T) {
	s := New(4, false)
	s.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hi"))
	})

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hi", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServerGateBoundsConcurrency(t *testing.T) {
	const maxThreads = 2
	s := New(maxThreads, false)

	var inFlight int32
	var maxSeen int32
	release := make(chan struct{})
	s.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		w.WriteHeader(http.StatusOK)
	})

	done := make(chan struct{}, maxThreads+1)
	for i := 0; i < maxThreads+1; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodGet, "/slow", nil)
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			done <- struct{}{}
		}()
	}

	// Give the goroutines a chance to pile up against the gate before
	// releasing them.
	for atomic.LoadInt32(&inFlight) < maxThreads {
	}
	close(release)
	for i := 0; i < maxThreads+1; i++ {
		<-done
	}

	require.LessOrEqual(t, int(maxSeen), maxThreads)
}

func TestListenRequiresAddr(t *testing.T) {
	s := New(1, false)
	err := s.Listen("")
	require.Error(t, err)
}

func TestListenURLBeforeListenIsEmpty(t *testing.T) {
	s := New(1, false)
	require.Equal(t, "", s.ListenURL())
}

func TestServeWithoutListenFails(t *testing.T) {
	s := New(1, false)
	err := s.Serve()
	require.Error(t, err)
}
