package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openpowerquality/opq.report/internal/api"
	"github.com/openpowerquality/opq.report/internal/capture"
	"github.com/openpowerquality/opq.report/internal/config"
	"github.com/openpowerquality/opq.report/internal/db"
	"github.com/openpowerquality/opq.report/internal/device"
	"github.com/openpowerquality/opq.report/internal/ingest"
	"github.com/openpowerquality/opq.report/internal/serialmux"
	"github.com/openpowerquality/opq.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file")
	port        = flag.String("port", "", "Serial port of the attached OPQ box (empty disables the serial link)")
	dbPath      = flag.String("db", "", "Path to the sqlite database")
	listen      = flag.String("listen", "", "HTTP listen address for the API and debug routes")
	udpListen   = flag.String("udp", "", "UDP listen address for packets sent over the network")
	pcapFile    = flag.String("pcap", "", "Replay a pcap/pcapng capture into the database and exit")
	pcapPort    = flag.Int("pcap-port", 0, "Only replay UDP datagrams sent to this port (0 = all)")
	devMode     = flag.Bool("dev", false, "Feed the pipeline from a simulated device instead of hardware")
	checksum    = flag.String("checksum", "", "Checksum policy: ignore, flag or drop")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("opqd"))
		return
	}

	cfg, err := loadConfig(*configPath, setFlags())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	handler := ingest.NewHandler(store, cfg.Policy(), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *pcapFile != "" {
		if err := handler.StartSession("pcap:" + *pcapFile); err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		stats, err := capture.ReadPCAP(ctx, *pcapFile, *pcapPort, handler)
		if err != nil {
			log.Fatalf("pcap replay failed: %v", err)
		}
		log.Printf("replayed %d datagrams, ingest stats %+v", stats.Datagrams, handler.Stats())
		return
	}

	link, emitter, source, err := openLink(cfg)
	if err != nil {
		log.Fatalf("failed to open device link: %v", err)
	}

	if err := handler.StartSession(source); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		// closing unblocks the dev emitter and ends the ingest subscription
		if err := link.Close(); err != nil {
			log.Printf("failed to close device link: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := handler.Run(ctx, link); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ingest routine failed: %v", err)
		}
		log.Print("ingest routine terminated")
	}()

	if emitter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := emitter.Run(ctx, cfg.GetDevInterval(), device.SimulatedGrid(cfg.Dev.Seed))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("simulated device stopped: %v", err)
			}
		}()
	}

	if cfg.UDPListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := capture.NewUDPListener(capture.UDPListenerConfig{Address: cfg.UDPListen, RcvBuf: cfg.UDPRcvBuf}, handler)
			if err := l.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP listener failed: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(link, store, handler).ServeMux()
		link.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("HTTP server listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete, ingest stats %+v", handler.Stats())
}

// openLink picks the device link: a simulated device in dev mode, the
// configured serial port, or a disabled link when packets only arrive over
// UDP. The emitter is non-nil only in dev mode.
func openLink(cfg *config.IngestConfig) (serialmux.SerialMuxInterface, *device.Emitter, string, error) {
	switch {
	case cfg.Dev.Enabled:
		mux, pipe := serialmux.NewPipeSerialMux()
		emitter := device.NewEmitter(cfg.Dev.DeviceID, pipe.DeviceWriter(), nil)
		return mux, emitter, fmt.Sprintf("dev:%d", cfg.Dev.DeviceID), nil
	case cfg.Serial.Port != "":
		mux, err := serialmux.NewRealSerialMux(cfg.Serial.Port, cfg.Serial.Options)
		if err != nil {
			return nil, nil, "", err
		}
		return mux, nil, "serial:" + cfg.Serial.Port, nil
	default:
		return serialmux.NewDisabledSerialMux(), nil, "udp:" + cfg.UDPListen, nil
	}
}
