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
	"time"

	"go.uber.org/zap"

	"github.com/veos-sxarr-NEC/ve-urpc/internal/transport/urpc"
)

// Config controls segment sizing, the remote binary to spawn, and timeouts
// for a host-created Context. There is no config-file format here — the
// corpus this module is drawn from configures this layer entirely through
// Go struct literals and functional options, never a parsed file, so a
// config-file library has nothing to bind to.
type Config struct {
	// SegmentName, if empty, is generated with a uuid-backed default.
	SegmentName string
	SlotCount   uint64
	DataBufLen  uint64
	MaxHandlers uint32

	// RemotePath is the accelerator-side binary the host forks. Empty
	// means the caller will attach a remote process out of band (tests
	// commonly do this in-process, with both peers sharing one segment).
	RemotePath string
	RemoteArgs []string
	VENode     int
	VECore     int

	AttachTimeout   time.Duration
	SynchronizeTick time.Duration
	AllocTimeout    time.Duration
	Logger          *zap.Logger
}

// Option mutates a Config during construction.
type Option func(*Config)

// DefaultConfig returns a Config with the transport's default slot count,
// data buffer size, and handler table size.
func DefaultConfig() Config {
	return Config{
		SlotCount:       urpc.DefaultSlotCount,
		DataBufLen:      urpc.DefaultDataBufferSize,
		MaxHandlers:     urpc.DefaultMaxHandlers,
		AttachTimeout:   10 * time.Second,
		SynchronizeTick: 50 * time.Microsecond,
		AllocTimeout:    urpc.DefaultAllocTimeout,
	}
}

// WithMaxHandlers overrides the handler table size, bounding which command
// codes Register will accept.
func WithMaxHandlers(n uint32) Option {
	return func(c *Config) { c.MaxHandlers = n }
}

// WithAllocTimeout bounds how long a blocked Send waits for the peer to
// free payload space before giving up with ErrOutOfPayload.
func WithAllocTimeout(d time.Duration) Option {
	return func(c *Config) { c.AllocTimeout = d }
}

// WithSegmentName sets an explicit segment name instead of a generated one.
func WithSegmentName(name string) Option {
	return func(c *Config) { c.SegmentName = name }
}

// WithQueueSize overrides the mailbox depth and data ring size for both
// directions.
func WithQueueSize(slotCount, dataBufLen uint64) Option {
	return func(c *Config) {
		c.SlotCount = slotCount
		c.DataBufLen = dataBufLen
	}
}

// WithRemote configures the accelerator binary CreateHostPeer forks.
func WithRemote(path string, args []string, veNode, veCore int) Option {
	return func(c *Config) {
		c.RemotePath = path
		c.RemoteArgs = args
		c.VENode = veNode
		c.VECore = veCore
	}
}

// WithAttachTimeout bounds how long the host waits for the remote to
// attach before giving up.
func WithAttachTimeout(d time.Duration) Option {
	return func(c *Config) { c.AttachTimeout = d }
}

// WithLogger overrides the Context's zap logger. Defaults to zap.NewNop
// when unset, matching a library (rather than a CLI binary) that should
// never emit output unless a host application asks it to.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Apply folds opts onto DefaultConfig.
func Apply(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
