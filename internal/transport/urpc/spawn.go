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
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// SpawnConfig describes the remote binary the host forks, the loader
// spec.md §1 names as out of scope for the core but whose interface this
// package still needs to hand a segment to.
type SpawnConfig struct {
	Path          string
	Args          []string
	Bootstrap     BootstrapConfig
	AttachTimeout time.Duration
}

// SpawnRemote starts cfg.Path with the bootstrap environment set, then
// races the attach handshake against the child exiting early. If the child
// exits (or fails to start) before attaching, that error is returned
// instead of an attach timeout, since it is almost always the more useful
// diagnostic.
func SpawnRemote(ctx context.Context, seg *Segment, cfg SpawnConfig) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args...)
	cmd.Env = append(os.Environ(), EnvFor(cfg.Bootstrap)...)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("urpc: failed to start remote %s: %w", cfg.Path, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cmd.Wait()
	})

	attachTimeout := cfg.AttachTimeout
	if attachTimeout == 0 {
		attachTimeout = 10 * time.Second
	}

	attached := make(chan error, 1)
	go func() {
		attached <- seg.WaitForAttach(gctx, attachTimeout)
	}()

	select {
	case err := <-attached:
		if err != nil {
			_ = cmd.Process.Kill()
			return cmd, fmt.Errorf("urpc: remote never attached: %w", err)
		}
		return cmd, nil
	case <-gctx.Done():
		// The child exited (or ctx was canceled) before attaching.
		err := g.Wait()
		if err != nil {
			return cmd, fmt.Errorf("urpc: remote exited before attaching: %w", err)
		}
		return cmd, fmt.Errorf("urpc: remote exited before attaching")
	}
}
