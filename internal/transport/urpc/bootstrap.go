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
	"strconv"
)

// Environment variable names the host sets and the remote reads when it is
// forked, per spec.md §4.1's attach handshake (out-of-scope as a CLI, but
// the variable names and parsing are part of the contract between the two
// processes).
const (
	EnvSegmentID = "URPC_SHM_SEGID"
	EnvVENode    = "VE_NODE_NUMBER"
	EnvVECore    = "URPC_VE_CORE"
	EnvVEBin     = "URPC_VE_BIN"
)

// BootstrapConfig is what a remote process reads out of its environment to
// find and attach to the segment the host created.
type BootstrapConfig struct {
	SegmentID string `json:"segment_id"`
	VENode    int    `json:"ve_node"`
	VECore    int    `json:"ve_core"`
	VEBin     string `json:"ve_bin,omitempty"`
}

// DefaultVECore is what VECore resolves to when URPC_VE_CORE is unset,
// meaning "no specific core pinning requested."
const DefaultVECore = -1

// BootstrapFromEnv parses the four URPC_* / VE_* environment variables a
// host-spawned remote process expects. VEBin and VECore (optional core
// pinning, per spec.md §6) may be unset; SegmentID and VENode are required.
func BootstrapFromEnv() (BootstrapConfig, error) {
	segID := os.Getenv(EnvSegmentID)
	if segID == "" {
		return BootstrapConfig{}, fmt.Errorf("urpc: %s is not set", EnvSegmentID)
	}

	node, err := parseIntEnv(EnvVENode)
	if err != nil {
		return BootstrapConfig{}, err
	}
	core, err := parseIntEnvDefault(EnvVECore, DefaultVECore)
	if err != nil {
		return BootstrapConfig{}, err
	}

	return BootstrapConfig{
		SegmentID: segID,
		VENode:    node,
		VECore:    core,
		VEBin:     os.Getenv(EnvVEBin),
	}, nil
}

func parseIntEnv(name string) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, fmt.Errorf("urpc: %s is not set", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("urpc: %s=%q is not an integer: %w", name, raw, err)
	}
	return v, nil
}

// parseIntEnvDefault is parseIntEnv for optional variables: an unset value
// resolves to def instead of an error.
func parseIntEnvDefault(name string, def int) (int, error) {
	if os.Getenv(name) == "" {
		return def, nil
	}
	return parseIntEnv(name)
}

// EnvFor formats the environment a host should pass to a spawned remote
// process for the given bootstrap parameters.
func EnvFor(cfg BootstrapConfig) []string {
	env := []string{
		EnvSegmentID + "=" + cfg.SegmentID,
		EnvVENode + "=" + strconv.Itoa(cfg.VENode),
		EnvVECore + "=" + strconv.Itoa(cfg.VECore),
	}
	if cfg.VEBin != "" {
		env = append(env, EnvVEBin+"="+cfg.VEBin)
	}
	return env
}
