package serialmux

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openpowerquality/opq.report/internal/protocol"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts debugging endpoints on mux under /debug/. tsweb
// only serves them to loopback and tailnet clients.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// send-packet-api accepts a transport string, checks that it decodes and
	// writes it to the device unchanged.
	debug.HandleSilentFunc("send-packet-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		encoded := strings.TrimSpace(r.FormValue("packet"))
		if encoded == "" {
			http.Error(w, "Missing packet", http.StatusBadRequest)
			return
		}
		p, err := protocol.FromTransportString(encoded)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.SendPacket(p); err != nil {
			http.Error(w, "Failed to write packet", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote packet %s", p))
	})

	// tail streams every line read from the port as Server-Sent Events.
	debug.Handle("tail", "live tail of the serial link", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ClassifyLine(line), line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
}
