package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/unkn0wn-root/harkit/internal/nettrace"
)

// traceSession feeds httptrace callbacks into a collector. Redirect hops
// reuse the same session, so phases accumulate across the whole exchange.
type traceSession struct {
	collector *nettrace.Collector
	trace     *httptrace.ClientTrace

	mu             sync.Mutex
	reqBodyActive  bool
	ttfbActive     bool
	transferActive bool
}

func newTraceSession() *traceSession {
	s := &traceSession{collector: nettrace.NewCollector()}
	s.trace = &httptrace.ClientTrace{
		DNSStart:             s.onDNSStart,
		DNSDone:              s.onDNSDone,
		ConnectStart:         s.onConnectStart,
		ConnectDone:          s.onConnectDone,
		GotConn:              s.onGotConn,
		TLSHandshakeStart:    s.onTLSHandshakeStart,
		TLSHandshakeDone:     s.onTLSHandshakeDone,
		WroteHeaders:         s.onWroteHeaders,
		WroteRequest:         s.onWroteRequest,
		GotFirstResponseByte: s.onGotFirstResponseByte,
	}
	return s
}

func (s *traceSession) bind(req *http.Request) *http.Request {
	if req == nil {
		return nil
	}
	ctx := httptrace.WithClientTrace(req.Context(), s.trace)
	return req.WithContext(ctx)
}

func (s *traceSession) onDNSStart(info httptrace.DNSStartInfo) {
	s.collector.Begin(nettrace.PhaseDNS, time.Now(), nettrace.PhaseMeta{Addr: info.Host})
}

func (s *traceSession) onDNSDone(info httptrace.DNSDoneInfo) {
	if len(info.Addrs) > 0 {
		s.collector.Annotate(nettrace.PhaseDNS, func(meta *nettrace.PhaseMeta) {
			meta.Addr = info.Addrs[0].String()
		})
	}
	s.collector.End(nettrace.PhaseDNS, time.Now(), info.Err)
	s.collector.Fail(info.Err)
}

func (s *traceSession) onConnectStart(_, addr string) {
	s.collector.Begin(nettrace.PhaseConnect, time.Now(), nettrace.PhaseMeta{Addr: addr})
}

func (s *traceSession) onConnectDone(_, _ string, err error) {
	s.collector.End(nettrace.PhaseConnect, time.Now(), err)
	s.collector.Fail(err)
}

// A reused connection is recorded as an empty connect phase so Timings can
// tell it apart from a connection that was never opened.
func (s *traceSession) onGotConn(info httptrace.GotConnInfo) {
	if !info.Reused {
		return
	}
	now := time.Now()
	s.collector.Begin(nettrace.PhaseConnect, now, nettrace.PhaseMeta{
		Addr:   addrString(info.Conn),
		Reused: true,
	})
	s.collector.End(nettrace.PhaseConnect, now, nil)
}

func (s *traceSession) onTLSHandshakeStart() {
	s.collector.Begin(nettrace.PhaseTLS, time.Now(), nettrace.PhaseMeta{})
}

func (s *traceSession) onTLSHandshakeDone(_ tls.ConnectionState, err error) {
	s.collector.End(nettrace.PhaseTLS, time.Now(), err)
	s.collector.Fail(err)
}

func (s *traceSession) onWroteHeaders() {
	now := time.Now()
	s.collector.Begin(nettrace.PhaseReqHdrs, now, nettrace.PhaseMeta{})
	s.collector.End(nettrace.PhaseReqHdrs, now, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reqBodyActive {
		s.reqBodyActive = true
		s.collector.Begin(nettrace.PhaseReqBody, now, nettrace.PhaseMeta{})
	}
}

func (s *traceSession) onWroteRequest(info httptrace.WroteRequestInfo) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reqBodyActive {
		s.collector.End(nettrace.PhaseReqBody, now, info.Err)
		s.reqBodyActive = false
	}
	if info.Err != nil {
		s.collector.Fail(info.Err)
		return
	}
	if !s.ttfbActive {
		s.ttfbActive = true
		s.collector.Begin(nettrace.PhaseTTFB, now, nettrace.PhaseMeta{})
	}
}

func (s *traceSession) onGotFirstResponseByte() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttfbActive {
		s.collector.End(nettrace.PhaseTTFB, now, nil)
		s.ttfbActive = false
	}
	if !s.transferActive {
		s.transferActive = true
		s.collector.Begin(nettrace.PhaseTransfer, now, nettrace.PhaseMeta{})
	}
}

func (s *traceSession) finishTransfer(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transferActive {
		return
	}
	s.collector.End(nettrace.PhaseTransfer, time.Now(), err)
	s.transferActive = false
	s.collector.Fail(err)
}

func (s *traceSession) complete() *nettrace.Timeline {
	s.collector.Complete(time.Now())
	return s.collector.Timeline()
}

func addrString(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
