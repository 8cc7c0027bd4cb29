/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements the key-value persistence used for card face layouts.
// Every backend exposes the same string-in/string-out contract (KV). The file
// backend writes transactionally with timestamped backups and falls back to the
// newest backup when the current value is unreadable. The SQLite backend keeps a
// bounded revision history per key. Postgres and Redis backends serve shared
// deployments; the memory backend serves tests and throwaway sessions.
package storage
