package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/openpowerquality/opq.report/internal/protocol"
)

// localHostRequest builds a request that tsweb's debug handler treats as
// coming from loopback.
func localHostRequest(method, target string, body *strings.Reader) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func postPacketForm(t *testing.T, mux *http.ServeMux, packet string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	if packet != "" {
		form.Set("packet", packet)
	}
	req := localHostRequest(http.MethodPost, "/debug/send-packet-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSendPacketAPI(t *testing.T) {
	port := NewTestableSerialPort()
	sm := NewSerialMux(port)
	mux := http.NewServeMux()
	sm.AttachAdminRoutes(mux)

	p := protocol.NewPacket()
	p.SetSequenceNumber(3)
	p.SetMeasurement(59.98, 121.4)
	p.SetChecksum()

	w := postPacketForm(t, mux, p.TransportString())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Body.String(), "Wrote packet type=measurement seq=3") {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if got, want := port.WrittenData(), p.TransportString()+"\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestSendPacketAPI_BadRequests(t *testing.T) {
	port := NewTestableSerialPort()
	sm := NewSerialMux(port)
	mux := http.NewServeMux()
	sm.AttachAdminRoutes(mux)

	if w := postPacketForm(t, mux, ""); w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Missing packet") {
		t.Errorf("missing packet: got %d %q", w.Code, w.Body.String())
	}
	if w := postPacketForm(t, mux, "not base64!"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid packet: got %d", w.Code)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/send-packet-api", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: got %d", w.Code)
	}

	if port.WrittenData() != "" {
		t.Errorf("nothing should have been written, got %q", port.WrittenData())
	}
}

func TestSendPacketAPI_WriteFailure(t *testing.T) {
	port := NewTestableSerialPort()
	port.ShortWrite = true
	sm := NewSerialMux(port)
	mux := http.NewServeMux()
	sm.AttachAdminRoutes(mux)

	p := protocol.NewPacket()
	if w := postPacketForm(t, mux, p.TransportString()); w.Code != http.StatusInternalServerError {
		t.Errorf("got %d, want 500", w.Code)
	}
}

func TestTailRoute(t *testing.T) {
	sm := NewSerialMux(NewTestableSerialPort())
	mux := http.NewServeMux()
	sm.AttachAdminRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	req := localHostRequest(http.MethodGet, "/debug/tail", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		mux.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sm.subscriberMu.Lock()
		n := len(sm.subscribers)
		sm.subscriberMu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tail handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sm.publish("# boot ok")
	sm.publish("AMD/7g==")

	// give the handler a chance to drain both lines before it is cancelled
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	for _, want := range []string{
		"event: diagnostic\ndata: # boot ok\n\n",
		"event: packet\ndata: AMD/7g==\n\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	sm.subscriberMu.Lock()
	defer sm.subscriberMu.Unlock()
	if len(sm.subscribers) != 0 {
		t.Errorf("expected tail to unsubscribe, %d left", len(sm.subscribers))
	}
}
