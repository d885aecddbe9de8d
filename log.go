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

import "go.uber.org/zap"

// NewDevelopmentLogger returns a human-readable, debug-level zap logger
// suitable for the dprintf side of the split the original transport drew
// between routine tracing and hard failures.
func NewDevelopmentLogger() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

// NewProductionLogger returns a JSON, info-level-and-above zap logger —
// the eprintf side: debug output is dropped, structured for ingestion.
func NewProductionLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// MustNewNopLogger returns a logger that discards everything, the default
// for a Context constructed without WithLogger.
func MustNewNopLogger() *zap.Logger {
	return zap.NewNop()
}
