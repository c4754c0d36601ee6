// Command ttp-client is the out-of-scope interactive shell sketched in
// spec.md §6 and SPEC_FULL §5.13: connect, get, set, close, quit, help.
// A thin line-oriented loop over the core's four procedures — no
// argument-parsing library beyond stdlib flag/bufio, matching the
// teacher's own CLI simplicity (cmd/sdo_client/main.go).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ttproto/tsunami"
	"github.com/ttproto/tsunami/internal/transcript"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	secretPath := flag.String("secret-file", "", "path to shared secret file")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	shell := &shell{
		params: tsunami.NewDefaultParams(),
		out:    os.Stdout,
	}
	if *secretPath != "" {
		secret, err := tsunami.LoadSecret(*secretPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ttp-client: %v\n", err)
			os.Exit(1)
		}
		shell.secret = secret
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(shell.out, "ttp> ")
	for scanner.Scan() {
		shell.dispatch(strings.Fields(scanner.Text()))
		if shell.quit {
			return
		}
		fmt.Fprint(shell.out, "ttp> ")
	}
}

type shell struct {
	client *tsunami.Client
	params tsunami.Params
	secret []byte
	out    *os.File
	quit   bool
}

func (s *shell) dispatch(args []string) {
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "connect":
		s.connect(args[1:])
	case "get":
		s.get(args[1:])
	case "set":
		s.set(args[1:])
	case "close":
		if s.client != nil {
			s.client.Close()
			s.client = nil
		}
	case "quit":
		if s.client != nil {
			s.client.Close()
		}
		s.quit = true
	case "help":
		fmt.Fprintln(s.out, "commands: connect [host [port]], get remote [local], set [key [value]], close, quit, help")
	default:
		fmt.Fprintf(s.out, "unknown command: %s\n", args[0])
	}
}

func (s *shell) connect(args []string) {
	host := "localhost"
	port := "46224"
	if len(args) > 0 {
		host = args[0]
	}
	if len(args) > 1 {
		port = args[1]
	}
	client, err := tsunami.Open(host+":"+port, append([]byte(nil), s.secret...))
	if err != nil {
		fmt.Fprintf(s.out, "connect failed: %v\n", err)
		return
	}
	s.client = client
	fmt.Fprintf(s.out, "connected to %s:%s\n", host, port)
}

func (s *shell) get(args []string) {
	if s.client == nil {
		fmt.Fprintln(s.out, "not connected")
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: get remote [local]")
		return
	}
	remote := args[0]
	local := remote
	if len(args) > 1 {
		local = args[1]
	}

	logFile, err := os.Create(local + ".ttplog")
	if err != nil {
		fmt.Fprintf(s.out, "transfer failed: opening transcript: %v\n", err)
		return
	}
	defer logFile.Close()
	start := time.Now()
	tr := transcript.New(logFile, uint32(start.Unix()))
	tr.Event("transfer %q -> %q starting", remote, local)

	if err := s.client.RequestFile(remote, local, s.params); err != nil {
		tr.Summary(remote, 0, 0, 0)
		fmt.Fprintf(s.out, "transfer failed: %v\n", err)
		return
	}

	info, statErr := os.Stat(local)
	var size uint64
	if statErr == nil {
		size = uint64(info.Size())
	}
	tr.Summary(remote, size, time.Since(start), 0)
	fmt.Fprintf(s.out, "transferred %s -> %s\n", remote, local)
}

func (s *shell) set(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "%+v\n", s.params)
		return
	}
	if len(args) == 1 {
		fmt.Fprintf(s.out, "%s: see 'set %s value'\n", args[0], args[0])
		return
	}
	key, value := args[0], args[1]
	var n uint64
	fmt.Sscanf(value, "%d", &n)
	switch key {
	case "block_size":
		s.params.BlockSize = uint32(n)
	case "rate":
		s.params.TargetRate = uint32(n)
	case "error_rate":
		s.params.ErrorRate = uint32(n)
	case "no_retransmit":
		s.params.NoRetransmit = value == "true" || value == "1"
	default:
		fmt.Fprintf(s.out, "unknown key: %s\n", key)
		return
	}
	fmt.Fprintf(s.out, "%s = %s\n", key, value)
}
