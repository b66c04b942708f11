// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"errors"
	"io"
	"net"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/ClusterCockpit/cc-dsml/internal/wakeup"
	"github.com/ClusterCockpit/cc-dsml/internal/wire"
)

// dispatcher is C5: the inbound dispatcher watching sockets this process
// expects publishes on. spec.md describes one thread poll()ing the whole
// set with a wakeup-pipe slot 0; here each registered owner connection
// gets its own goroutine (SPEC_FULL.md §1.1), and the wakeup.Group exists
// so State.Close can tear every one of them down in one call.
type dispatcher struct {
	state *State
	group *wakeup.Group
}

func newDispatcher(s *State) *dispatcher {
	return &dispatcher{state: s, group: wakeup.New()}
}

// watch registers conn (the connection to ownerName) and starts reading
// publish frames from it until it errors, is closed, or the dispatcher is
// torn down.
func (d *dispatcher) watch(ownerName string, conn net.Conn) {
	id, ok := d.group.Add(conn)
	if !ok {
		conn.Close()
		return
	}
	go d.serve(ownerName, conn, id)
}

func (d *dispatcher) serve(ownerName string, conn net.Conn, id uint64) {
	defer d.group.Remove(id)

	for {
		name, data, err := wire.ReadPublish(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				cclog.Warnf("[DSML/DISPATCH]> publish read from owner %q failed: %v", ownerName, err)
			} else {
				cclog.Debugf("[DSML/DISPATCH]> owner %q disconnected", ownerName)
			}
			return
		}

		v := d.state.lookup(name)
		if v == nil {
			cclog.Warnf("[DSML/DISPATCH]> owner %q published unknown variable %q", ownerName, name)
			return
		}
		if v.isOwner {
			cclog.Warnf("[DSML/DISPATCH]> owner %q published %q which we own locally", ownerName, name)
			continue
		}

		now := v.applyLocal(data, v.elementCountFor(data))
		d.state.emitEvent(v.Name, now)
	}
}

func (d *dispatcher) closeAll() {
	d.group.CloseAll()
}
