// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"net"
	"strconv"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// listen implements C4: bind the listening socket (only called when this
// process owns at least one variable, spec.md §4.4) and run the accept
// loop in a dedicated goroutine until the listener is closed.
func (s *State) listen(port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", portString(port)))
	if err != nil {
		return &SystemError{Op: "listen", Err: err}
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	return nil
}

func (s *State) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			cclog.Debugf("[DSML/LISTEN]> accept loop exiting: %v", err)
			return
		}
		configureAcceptedConn(conn)
		s.subs.accept(conn)
	}
}

// configureAcceptedConn applies spec.md §4.4's per-connection socket
// options: TCP keepalive and a zero-linger close. Go's net package does not
// expose a portable "no SIGPIPE" socket option (unlike the original C
// source's SO_NOSIGPIPE/MSG_NOSIGNAL) — on Unix, writes to a closed socket
// surface as an EPIPE error through the normal net.Conn.Write return value
// rather than a process-fatal signal, which is the same observable
// behavior spec.md requires ("a peer disappearance surfaces as an error
// return rather than a process-fatal signal").
func configureAcceptedConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(30 * time.Second)
	tc.SetLinger(0)
}

func portString(port int) string {
	return strconv.Itoa(port)
}
