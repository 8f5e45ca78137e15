// Copyright 2014 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package channel

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"
	"regbridge/protocol"
)

//
// Link --
//
// One connection and the goroutine reading from it.
// The reader splits the stream in two: interrupts are
// pushed to the sink as they arrive, everything else is
// a response for the (single) outstanding request.

type link struct {
	name string
	conn net.Conn
	sink Sink
	tomb tomb.Tomb

	// The response slot.
	responses chan protocol.Message

	// Non-zero while a request is outstanding.
	waiting int32
}

func newLink(name string, conn net.Conn, sink Sink) *link {
	l := &link{
		name:      name,
		conn:      conn,
		sink:      sink,
		responses: make(chan protocol.Message, 1),
	}
	l.tomb.Go(l.loop)
	return l
}

func (l *link) loop() error {
	for {
		var msg protocol.Message
		err := protocol.ReadMessage(l.conn, &msg)
		if err != nil {
			select {
			case <-l.tomb.Dying():
				return nil
			default:
			}
			return err
		}

		if msg.Command == protocol.CmdInterrupt {
			if l.sink != nil {
				l.sink.Deliver(&msg)
			} else {
				log.Printf("%s: no sink, dropped %s", l.name, msg.String())
			}
			continue
		}

		if atomic.LoadInt32(&l.waiting) == 0 {
			log.Printf("%s: unsolicited %s dropped", l.name, msg.String())
			continue
		}

		select {
		case l.responses <- msg:
		default:
			log.Printf("%s: extra response %s dropped", l.name, msg.String())
		}
	}
}

func (l *link) alive() bool {
	select {
	case <-l.tomb.Dying():
		return false
	default:
		return true
	}
}

func (l *link) stop() {
	l.tomb.Kill(nil)
	l.conn.Close()
	l.tomb.Wait()
}

func (l *link) roundtrip(
	ctx context.Context,
	msg *protocol.Message,
	timeout time.Duration) (*protocol.Message, error) {

	// Anything left over is stale.
	select {
	case <-l.responses:
	default:
	}

	atomic.StoreInt32(&l.waiting, 1)
	defer atomic.StoreInt32(&l.waiting, 0)

	l.conn.SetWriteDeadline(time.Now().Add(timeout))
	err := protocol.WriteMessage(l.conn, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ChannelBroken, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-l.responses:
		return &resp, nil
	case <-timer.C:
		return nil, ChannelTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ChannelTimeout, ctx.Err())
	case <-l.tomb.Dying():
		return nil, fmt.Errorf("%w: %v", ChannelBroken, l.tomb.Err())
	}
}
