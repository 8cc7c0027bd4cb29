/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"cardcanvas/internal/editor"
	"cardcanvas/internal/metrics"
	"cardcanvas/internal/storage"
	"cardcanvas/internal/telemetry"
)

// Options carries what the desktop host needs to run the card workflow.
// Navigator may be nil, in which case the final step only reports success.
type Options struct {
	KV        storage.KV
	Editor    editor.Config
	Exporter  editor.Exporter
	Navigator editor.Navigator
	Metrics   *metrics.Collector
	Telemetry telemetry.Sink
	// DataDir receives crash reports.
	DataDir string
}
