// Command ttp-server is the out-of-scope CLI daemon sketched in
// SPEC_FULL §5.13: a flag-parsed entrypoint serving files from a
// directory root over the Tsunami Transfer Protocol. Grounded on
// cmd/canopen/main.go's flag-based shape (stdlib flag, log.SetLevel from
// a verbosity flag).
package main

import (
	"fmt"
	"net"
	"os"

	log "github.com/sirupsen/logrus"

	"flag"

	"github.com/ttproto/tsunami"
)

func main() {
	listen := flag.String("listen", ":46224", "control channel listen address")
	root := flag.String("root", ".", "directory to serve files from")
	secretPath := flag.String("secret-file", "", "path to shared secret file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	var secret []byte
	var err error
	if *secretPath != "" {
		secret, err = tsunami.LoadSecret(*secretPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ttp-server: %v\n", err)
			os.Exit(1)
		}
	}

	params := tsunami.NewDefaultParams()
	server := tsunami.NewServer(*root, secret, params)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ttp-server: %v\n", err)
		os.Exit(1)
	}
	log.Infof("[SERVER] listening on %s, serving %s", *listen, *root)
	if err := server.Serve(ln); err != nil {
		fmt.Fprintf(os.Stderr, "ttp-server: %v\n", err)
		os.Exit(1)
	}
}
