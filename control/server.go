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

package control

import (
	"io"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"

	"gopkg.in/tomb.v2"

	"regbridge/bridge"
)

// Every connection starts with this line.
const Header = "REGB RPC\n"

//
// Control --
//
// A JSON-RPC endpoint for harnesses that cannot link the
// bridge directly: they register devices and read or write
// registers through the same path as the driver does.
//

type Control struct {
	listener net.Listener
	server   *rpc.Server
	tomb     tomb.Tomb
}

func (control *Control) handle(conn net.Conn) {
	defer conn.Close()

	// Read single header.
	// This is a simple plaintext line.
	header_buf := make([]byte, len(Header))
	_, err := io.ReadFull(conn, header_buf)
	if err != nil || string(header_buf) != Header {
		conn.Write([]byte(InvalidHeader.Error()))
		return
	}

	// Run as JSON RPC connection.
	codec := jsonrpc.NewServerCodec(conn)
	control.server.ServeCodec(codec)
}

func (control *Control) serve() error {
	for {
		conn, err := control.listener.Accept()
		if err != nil {
			select {
			case <-control.tomb.Dying():
				return nil
			default:
			}
			return err
		}
		go control.handle(conn)
	}
}

func NewControl(network string, address string, b *bridge.Bridge) (*Control, error) {
	if address == "" {
		return nil, InvalidControlSocket
	}
	if network == "unix" {
		os.Remove(address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	control := &Control{
		listener: listener,
		server:   rpc.NewServer(),
	}
	err = control.server.Register(NewRpc(b))
	if err != nil {
		listener.Close()
		return nil, err
	}

	control.tomb.Go(control.serve)
	log.Printf("control: listening on %s", listener.Addr())
	return control, nil
}

func (control *Control) Addr() net.Addr {
	return control.listener.Addr()
}

// Dead is closed when the server stops.
func (control *Control) Dead() <-chan struct{} {
	return control.tomb.Dead()
}

func (control *Control) Close() error {
	control.tomb.Kill(nil)
	control.listener.Close()
	return control.tomb.Wait()
}

// Dial connects a client to a control socket.
func Dial(network string, address string) (*rpc.Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	_, err = conn.Write([]byte(Header))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return jsonrpc.NewClient(conn), nil
}
