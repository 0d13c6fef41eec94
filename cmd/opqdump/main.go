// Command opqdump decodes OPQ transport strings and prints every header and
// payload field. Strings come from the arguments, from stdin (one per line)
// or from the UDP datagrams of a pcap/pcapng capture.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openpowerquality/opq.report/internal/capture"
	"github.com/openpowerquality/opq.report/internal/protocol"
	"github.com/openpowerquality/opq.report/internal/serialmux"
	"github.com/openpowerquality/opq.report/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	json     bool
	strict   bool
	pcap     string
	pcapPort int
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("opqdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.BoolVar(&opts.json, "json", false, "Print one JSON object per packet")
	fs.BoolVar(&opts.strict, "strict", false, "Exit non-zero when any checksum does not match")
	fs.StringVar(&opts.pcap, "pcap", "", "Decode packets carried in the UDP datagrams of a capture file")
	fs.IntVar(&opts.pcapPort, "pcap-port", 0, "Only decode datagrams sent to this UDP port (0 = all)")
	showVersion := fs.Bool("version", false, "Print version information and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("opqdump"))
		return 0
	}

	d := &dumper{out: stdout, errOut: stderr, opts: opts}

	switch {
	case opts.pcap != "":
		if _, err := capture.ReadPCAP(context.Background(), opts.pcap, opts.pcapPort, d); err != nil {
			fmt.Fprintf(stderr, "opqdump: %v\n", err)
			d.failed = true
		}
	case fs.NArg() > 0:
		for _, s := range fs.Args() {
			_ = d.HandleLine(s)
		}
	default:
		sc := bufio.NewScanner(stdin)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			_ = d.HandleLine(line)
		}
		if err := sc.Err(); err != nil {
			fmt.Fprintf(stderr, "opqdump: reading stdin: %v\n", err)
			d.failed = true
		}
	}

	if d.failed || (opts.strict && d.badChecksums > 0) {
		return 1
	}
	return 0
}

// dumper prints packets as they are decoded. It satisfies capture.Sink so
// capture replays can feed it directly.
type dumper struct {
	out, errOut  io.Writer
	opts         options
	count        int
	badChecksums int
	failed       bool
}

func (d *dumper) HandleLine(line string) error {
	line = strings.TrimSpace(line)
	if serialmux.ClassifyLine(line) != serialmux.LineTypePacket {
		fmt.Fprintf(d.errOut, "opqdump: skipping non-packet line %q\n", line)
		return nil
	}
	p, err := protocol.FromTransportString(line)
	if err != nil {
		fmt.Fprintf(d.errOut, "opqdump: %v\n", err)
		d.failed = true
		return err
	}
	return d.HandlePacket(p)
}

func (d *dumper) HandlePacket(p *protocol.Packet) error {
	desc := protocol.Describe(p)
	d.count++
	if !desc.ChecksumOK {
		d.badChecksums++
	}

	if d.opts.json {
		enc := json.NewEncoder(d.out)
		return enc.Encode(desc)
	}
	writeText(d.out, d.count, desc)
	return nil
}

func writeText(w io.Writer, n int, d protocol.Description) {
	fmt.Fprintf(w, "packet %d\n", n)
	fmt.Fprintf(w, "  header        0x%08X (ok=%t)\n", d.Header, d.HeaderOK)
	fmt.Fprintf(w, "  type          %s (code=%d known=%t)\n", d.Type, d.TypeCode, d.KnownType)
	fmt.Fprintf(w, "  sequence      %d\n", d.SequenceNumber)
	fmt.Fprintf(w, "  device        %d\n", d.DeviceID)
	fmt.Fprintf(w, "  timestamp     %d (%s)\n", d.Timestamp, d.Time.Format("2006-01-02T15:04:05.000Z07:00"))
	fmt.Fprintf(w, "  bitfield      0x%08X\n", uint32(d.Bitfield))
	fmt.Fprintf(w, "  payload size  %d\n", d.PayloadSize)
	fmt.Fprintf(w, "  reserved      %s\n", d.Reserved)
	fmt.Fprintf(w, "  checksum      %d (computed=%d ok=%t)\n", d.Checksum, d.ComputedChecksum, d.ChecksumOK)
	fmt.Fprintf(w, "  payload       %s\n", d.Payload)
	switch {
	case d.Measurement != nil:
		fmt.Fprintf(w, "  frequency     %g Hz\n", d.Measurement.Frequency)
		fmt.Fprintf(w, "  voltage       %g V\n", d.Measurement.Voltage)
	case d.Alert != nil:
		fmt.Fprintf(w, "  value         %g\n", d.Alert.Value)
		if d.Alert.HasDuration {
			fmt.Fprintf(w, "  duration      %d ms\n", d.Alert.Duration)
		}
	}
	if d.PayloadError != "" {
		fmt.Fprintf(w, "  payload error %s\n", d.PayloadError)
	}
}
