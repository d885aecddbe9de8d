/*
 *
 * Copyright 2026 The Urpc Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Command urpc-remote attaches to a segment named by URPC_SHM_SEGID (set
// by a host process via CreateHostPeer's fork), confirms the handshake,
// registers an echo handler, and services inbound calls until idle-timeout
// elapses with no traffic. Intended to be launched by urpc-host, or
// manually for testing the attach handshake in isolation.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"github.com/urfave/cli/v2"

	urpclib "github.com/veos-sxarr-NEC/ve-urpc"
	"github.com/veos-sxarr-NEC/ve-urpc/internal/transport/urpc"
)

func main() {
	app := &cli.App{
		Name:  "urpc-remote",
		Usage: "attach to a urpc shared memory segment as the remote peer",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "attach-timeout", Value: 10 * time.Second},
			&cli.DurationFlag{Name: "idle-timeout", Value: 30 * time.Second, Usage: "exit once no traffic is seen for this long"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	boot, err := urpc.BootstrapFromEnv()
	if err != nil {
		return err
	}

	log, err := urpclib.NewDevelopmentLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	remote, err := urpclib.AttachRemotePeer(ctx, boot.SegmentID,
		urpclib.WithAttachTimeout(c.Duration("attach-timeout")),
		urpclib.WithLogger(log),
	)
	if err != nil {
		return err
	}

	enc, err := sonnet.Marshal(boot)
	if err != nil {
		return err
	}
	fmt.Println(string(enc))

	if err := remote.RegisterHandler(urpclib.CmdRemoteCall, echoHandler(remote)); err != nil {
		return err
	}

	if _, err := remote.RecvProgressTimeout(ctx, 8, c.Duration("idle-timeout")); err != nil {
		return err
	}

	return remote.Close(ctx)
}

// echoHandler answers every inbound call by replying with the length of
// the argument buffer it received as the return value and a success
// status — enough for a host to exercise the full call/reply round trip
// without this binary knowing anything about the host's actual workload.
func echoHandler(remote *urpclib.Context) urpclib.HandlerFunc {
	return func(cmd uint8, payload []byte) int {
		_, args, err := urpclib.UnpackCall(payload)
		if err != nil {
			return -1
		}
		if err := remote.Reply(context.Background(), uint64(len(args)), urpclib.StatusOK); err != nil {
			return -1
		}
		return 0
	}
}
