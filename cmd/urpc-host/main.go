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

// Command urpc-host creates a segment, optionally forks a remote binary,
// and prints diagnostics about the attach handshake and call traffic. It
// exists to exercise the library from the command line, not as the
// production loader spec.md §1 calls out of scope.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"github.com/urfave/cli/v2"

	urpclib "github.com/veos-sxarr-NEC/ve-urpc"
)

type diagReport struct {
	SegmentName string              `json:"segment_name"`
	SlotCount   uint64              `json:"slot_count"`
	DataBufLen  uint64              `json:"data_buf_len"`
	Stats       urpclib.StatsSnapshot `json:"stats"`
}

func main() {
	app := &cli.App{
		Name:  "urpc-host",
		Usage: "create a urpc shared memory segment and host context",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "segment-name", Usage: "override the generated segment name"},
			&cli.Uint64Flag{Name: "slots", Value: 256, Usage: "mailbox depth per direction"},
			&cli.Uint64Flag{Name: "data-buf-len", Value: 4 << 20, Usage: "payload ring size per direction"},
			&cli.StringFlag{Name: "remote-path", Usage: "remote binary to fork"},
			&cli.DurationFlag{Name: "attach-timeout", Value: 10 * time.Second},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log, err := urpclib.NewDevelopmentLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := []urpclib.Option{
		urpclib.WithQueueSize(c.Uint64("slots"), c.Uint64("data-buf-len")),
		urpclib.WithAttachTimeout(c.Duration("attach-timeout")),
		urpclib.WithLogger(log),
	}
	if name := c.String("segment-name"); name != "" {
		opts = append(opts, urpclib.WithSegmentName(name))
	}
	if remote := c.String("remote-path"); remote != "" {
		opts = append(opts, urpclib.WithRemote(remote, nil, 0, 0))
	}

	ctx := context.Background()
	host, cmd, err := urpclib.CreateHostPeer(ctx, opts...)
	if err != nil {
		return err
	}
	if cmd != nil {
		defer cmd.Process.Kill()
	}
	defer urpclib.Shutdown(host)

	report := diagReport{
		SegmentName: c.String("segment-name"),
		SlotCount:   c.Uint64("slots"),
		DataBufLen:  c.Uint64("data-buf-len"),
		Stats:       host.Stats(),
	}
	enc, err := sonnet.Marshal(report)
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}
