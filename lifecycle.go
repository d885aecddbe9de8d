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

package urpc

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/veos-sxarr-NEC/ve-urpc/internal/transport/urpc"
)

// CreateHostPeer creates a new shared segment, wires a Peer and a Context
// over it, and — if cfg.RemotePath is set — forks the remote binary and
// waits for it to attach. The returned Context is the main context for
// this peer pair: Close on it is a no-op, matching spec.md §4.7's "or the
// context is the main context" short-circuit, since tearing the main
// context down is done through Shutdown instead.
func CreateHostPeer(ctx context.Context, opts ...Option) (*Context, *exec.Cmd, error) {
	cfg := Apply(opts...)
	log := cfg.logger()

	name := cfg.SegmentName
	if name == "" {
		name = urpc.NewSegmentName()
	}

	seg, err := urpc.CreateSegment(name, cfg.SlotCount, cfg.DataBufLen)
	if err != nil {
		return nil, nil, fmt.Errorf("urpc: failed to create segment: %w", err)
	}

	send, recv := urpc.HostQueues(seg)
	peer := urpc.NewPeer(send, recv, cfg.MaxHandlers, log, func(p *urpc.Peer) {
		p.SetAllocTimeout(cfg.AllocTimeout)
	})

	var cmd *exec.Cmd
	if cfg.RemotePath != "" {
		spawned, err := urpc.SpawnRemote(ctx, seg, urpc.SpawnConfig{
			Path: cfg.RemotePath,
			Args: cfg.RemoteArgs,
			Bootstrap: urpc.BootstrapConfig{
				SegmentID: name,
				VENode:    cfg.VENode,
				VECore:    cfg.VECore,
			},
			AttachTimeout: cfg.AttachTimeout,
		})
		if err != nil {
			_ = seg.Teardown(true)
			return nil, nil, err
		}
		cmd = spawned

		// Attachment has been observed (SpawnRemote only returns success
		// after WaitForAttach does), so the backing file can be unlinked
		// now: the mmap stays valid for the life of the process, and a
		// crash from here on cleans itself up instead of leaking a
		// /dev/shm file, per spec.md §4.1's deferred-deletion handshake.
		if err := urpc.RemoveSegment(name); err != nil {
			log.Warn("failed to unlink segment file after attach", zap.Error(err))
		}
	}

	seg.MarkHostReady()
	hctx := newContext(peer, seg, true, log)
	return hctx, cmd, nil
}

// AttachRemotePeer attaches to an existing segment created by
// CreateHostPeer — normally called from the forked remote process after
// BootstrapFromEnv, but equally usable for attaching a second in-process
// Context in tests. It marks the segment's attach counter and waits for
// the host to finish initializing before returning.
func AttachRemotePeer(ctx context.Context, segmentName string, opts ...Option) (*Context, error) {
	cfg := Apply(opts...)
	log := cfg.logger()

	seg, err := urpc.OpenSegment(segmentName)
	if err != nil {
		return nil, fmt.Errorf("urpc: failed to attach segment %s: %w", segmentName, err)
	}
	if err := seg.WaitForHostReady(ctx, cfg.AttachTimeout); err != nil {
		_ = seg.Close()
		return nil, err
	}
	seg.MarkRemoteReady()

	send, recv := urpc.RemoteQueues(seg)
	peer := urpc.NewPeer(send, recv, cfg.MaxHandlers, log, func(p *urpc.Peer) {
		p.SetAllocTimeout(cfg.AllocTimeout)
	})

	return newContext(peer, seg, false, log), nil
}

// Shutdown tears down the main context's segment unconditionally,
// bypassing the "main context never closes" short-circuit in Close. Call
// this once, from whichever side created the segment, after every derived
// Context has already been closed.
func Shutdown(main *Context) error {
	main.state.Store(int32(StateExit))
	return main.seg.Teardown(true)
}
