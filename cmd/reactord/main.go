// Command reactord runs a minimal HTTP/1.x server on top of the
// reactor and http1 packages: every request gets a 200 response whose
// body echoes the request method and target.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/owacoder/skate-reactor/http1"
	"github.com/owacoder/skate-reactor/logx"
	"github.com/owacoder/skate-reactor/mux"
	"github.com/owacoder/skate-reactor/reactor"
)

func main() {
	addrFlag := flag.String("addr", ":8080", "address to listen on")
	maxConnsFlag := flag.Int("max-conns", 0, "reject connections beyond this count (0 = unlimited)")
	jsonLogFlag := flag.Bool("json-log", false, "emit logs as JSON lines instead of pretty text")
	flag.Parse()

	var logger logx.Logger
	if *jsonLogFlag {
		logger = logx.NewWriterLogger(os.Stderr, logx.LevelInfo)
	} else {
		logger = logx.NewDefaultLogger(logx.LevelInfo)
	}

	ln, err := net.Listen("tcp", *addrFlag)
	if err != nil {
		log.Fatalf("reactord: listen: %v", err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		log.Fatalf("reactord: expected a TCP listener")
	}
	fd, err := listenerFD(tcpLn)
	if err != nil {
		log.Fatalf("reactord: extract listener fd: %v", err)
	}

	m, err := mux.NewDefault(mux.WithLogger(logger))
	if err != nil {
		log.Fatalf("reactord: new multiplexer: %v", err)
	}
	defer m.Close()

	r := reactor.New(m,
		reactor.WithLogger(logger),
		reactor.WithErrorHook(func(err error) {
			logger.Log(logx.Entry{Level: logx.LevelError, Category: "reactor", Message: "reactor error", Err: err})
		}),
	)

	connCount := 0
	admit := func(fd int) bool {
		if *maxConnsFlag <= 0 {
			return true
		}
		if connCount >= *maxConnsFlag {
			return false
		}
		connCount++
		return true
	}

	listenerHandler := http1.NewServerListener(func() http1.RequestHandler {
		return handleRequest
	}, admit)

	listenerSocket := reactor.NewSocket(fd, listenerHandler, reactor.StateConnected, false)
	if err := r.Serve(listenerSocket); err != nil {
		log.Fatalf("reactord: serve listener: %v", err)
	}

	fmt.Printf("reactord listening on %s\n", *addrFlag)
	if err := r.Run(); err != nil {
		log.Fatalf("reactord: run: %v", err)
	}
}

func handleRequest(req *http1.Request) *http1.Response {
	body := fmt.Sprintf("%s %s\n", req.Method, req.Target)
	resp := &http1.Response{Major: req.Major, Minor: req.Minor, Code: 200, Reason: "OK", Body: []byte(body)}
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}

func listenerFD(l *net.TCPListener) (int, error) {
	raw, err := l.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	cerr := raw.Control(func(ptrFD uintptr) { fd = int(ptrFD) })
	if cerr != nil {
		return 0, cerr
	}
	return fd, nil
}
