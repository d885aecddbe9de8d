//go:build linux && (amd64 || arm64)

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
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Segment is a mapped shared memory segment holding both transfer queues.
type Segment struct {
	File *os.File
	Mem  []byte
	Path string
	Name string

	H *SegmentHeader
	A *transferQueueHeader // host -> remote
	B *transferQueueHeader // remote -> host

	teardown *teardownState
}

// NewSegmentName generates a collision-resistant default segment name when
// the caller does not supply one, so concurrent peer pairs and concurrent
// test runs never collide under /dev/shm.
func NewSegmentName() string {
	return "urpc-" + uuid.NewString()
}

// CreateSegment creates and initializes a new shared memory segment for the
// host side. slotCount and dataLen apply to both directions.
func CreateSegment(name string, slotCount, dataLen uint64) (*Segment, error) {
	path := segmentPath(name)

	totalSize, queueAOffset, queueBOffset, err := CalculateSegmentLayout(slotCount, dataLen)
	if err != nil {
		return nil, fmt.Errorf("layout calculation failed: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(totalSize)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize segment file: %w", err)
	}

	mem, err := mmapFile(file, int(totalSize))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	seg := &Segment{
		File:     file,
		Mem:      mem,
		Path:     path,
		Name:     name,
		H:        (*SegmentHeader)(unsafe.Pointer(&mem[0])),
		A:        (*transferQueueHeader)(unsafe.Pointer(&mem[queueAOffset])),
		B:        (*transferQueueHeader)(unsafe.Pointer(&mem[queueBOffset])),
		teardown: &teardownState{},
	}

	magic := [8]byte{'M', 'U', 'R', 'P', 'C', 0, 0, 0}
	seg.H.SetMagic(magic)
	seg.H.SetVersion(SegmentVersion)
	seg.H.SetTotalSize(totalSize)
	seg.H.SetQueueAOffset(queueAOffset)
	seg.H.SetQueueBOffset(queueBOffset)
	seg.H.SetSlotCount(slotCount)
	seg.H.SetDataBufLen(dataLen)
	seg.H.SetMaxHandlers(DefaultMaxHandlers)
	seg.H.SetHostPID(uint32(os.Getpid()))
	initQueueHeader(seg.A, slotCount, dataLen)
	initQueueHeader(seg.B, slotCount, dataLen)
	// HostReady is set by the caller once the handler table and context are
	// wired up, not here — see lifecycle.go.

	return seg, nil
}

func initQueueHeader(q *transferQueueHeader, slotCount, dataLen uint64) {
	atomicStoreQueueField(&q.slotCount, slotCount)
	atomicStoreQueueField(&q.dataLen, dataLen)
	q.SetLastPutReq(-1)
	q.SetLastGetReq(-1)
	q.SetSenderFlags(0)
	q.SetReceiverFlags(0)
	for i := uint64(0); i < slotCount; i++ {
		*q.mailboxAt(i) = 0
	}
}

// OpenSegment attaches to an existing segment created by CreateSegment.
func OpenSegment(name string) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}
	if info.Size() < SegmentHeaderSize {
		file.Close()
		return nil, fmt.Errorf("segment file too small: %d bytes", info.Size())
	}

	mem, err := mmapFile(file, int(info.Size()))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	hdr := (*SegmentHeader)(unsafe.Pointer(&mem[0]))
	if err := ValidateSegmentHeader(hdr); err != nil {
		unix.Munmap(mem)
		file.Close()
		return nil, fmt.Errorf("invalid segment header: %w", err)
	}

	seg := &Segment{
		File:     file,
		Mem:      mem,
		Path:     path,
		Name:     name,
		H:        hdr,
		A:        (*transferQueueHeader)(unsafe.Pointer(&mem[hdr.QueueAOffset()])),
		B:        (*transferQueueHeader)(unsafe.Pointer(&mem[hdr.QueueBOffset()])),
		teardown: &teardownState{},
	}
	seg.H.SetRemotePID(uint32(os.Getpid()))
	seg.H.IncrementAttachCount()
	return seg, nil
}

// Close unmaps the memory and closes the backing file descriptor.
func (s *Segment) Close() error {
	var firstErr error
	if s.Mem != nil {
		if err := unix.Munmap(s.Mem); err != nil && firstErr == nil {
			firstErr = err
		}
		s.Mem = nil
	}
	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.File = nil
	}
	return firstErr
}

// RemoveSegment removes a segment's backing file. The host calls this after
// observing attachment, so process death always cleans the segment up even
// without an explicit close (spec.md §4.1's "deferred deletion").
func RemoveSegment(name string) error {
	return os.Remove(segmentPath(name))
}

// SegmentExists reports whether a segment file for name is present.
func SegmentExists(name string) bool {
	_, err := os.Stat(segmentPath(name))
	return err == nil
}

func segmentPath(name string) string {
	shmDir := "/dev/shm"
	if info, err := os.Stat(shmDir); err == nil && info.IsDir() {
		return filepath.Join(shmDir, "urpc_"+name)
	}
	return filepath.Join(os.TempDir(), "urpc_"+name)
}

func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

// atomicStoreQueueField initializes a transferQueueHeader's self-descriptive
// slotCount/dataLen fields via an atomic store, never compiler-native
// structure assignment, matching the discipline spec.md requires for every
// field the remote process also reads across the segment boundary — even
// though these two are written once at creation and thereafter only read.
func atomicStoreQueueField(addr *uint64, v uint64) {
	atomic.StoreUint64(addr, v)
}
