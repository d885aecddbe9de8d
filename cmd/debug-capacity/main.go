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

// Command debug-capacity characterizes a payload ring's usable capacity: a
// size sweep that allocates, publishes, drains, and frees increasing
// payload sizes, followed by a fill-until-failure pass that allocates
// without draining to find the out-of-payload boundary. It exists to
// exercise internal/transport/urpc's allocator from the command line, the
// way a developer would when tuning DataBufLen for a workload.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sugawarayuuta/sonnet"
	"github.com/urfave/cli/v2"

	urpclib "github.com/veos-sxarr-NEC/ve-urpc"
	"github.com/veos-sxarr-NEC/ve-urpc/internal/transport/urpc"
)

type sweepReport struct {
	SlotCount      uint64                        `json:"slot_count"`
	DataBufLen     uint64                        `json:"data_buf_len"`
	Sweep          []urpclib.CapacityProbeResult `json:"sweep"`
	FillChunks     int                           `json:"fill_chunks"`
	FillBytes      int                           `json:"fill_bytes"`
	FillStoppedErr string                        `json:"fill_stopped_err,omitempty"`
}

func main() {
	app := &cli.App{
		Name:  "debug-capacity",
		Usage: "sweep a payload ring's usable capacity and backpressure boundary",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "slots", Value: 64, Usage: "mailbox depth per direction"},
			&cli.Uint64Flag{Name: "data-buf-len", Value: 65536, Usage: "payload ring size per direction"},
			&cli.IntFlag{Name: "chunk-size", Value: 1000, Usage: "chunk size for the fill-until-failure pass"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("debug-capacity: %v", err)
	}
}

func run(c *cli.Context) error {
	slots := c.Uint64("slots")
	dataBufLen := c.Uint64("data-buf-len")

	seg, err := urpc.CreateSegment(urpc.NewSegmentName(), slots, dataBufLen)
	if err != nil {
		return fmt.Errorf("failed to create segment: %w", err)
	}
	defer seg.Teardown(true)

	sweepSizes := []int{10, 20, 30, 40, 50, 100, 200, 500, 1000, 5000}
	sweep := urpclib.ProbeAllocatorCapacity(seg, sweepSizes)

	chunks, bytes, fillErr := urpclib.FillUntilOutOfPayload(seg, c.Int("chunk-size"), int(slots)-1)
	report := sweepReport{
		SlotCount:  slots,
		DataBufLen: dataBufLen,
		Sweep:      sweep,
		FillChunks: chunks,
		FillBytes:  bytes,
	}
	if fillErr != nil {
		report.FillStoppedErr = fillErr.Error()
	}

	enc, err := sonnet.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Println(string(enc))
	return nil
}
