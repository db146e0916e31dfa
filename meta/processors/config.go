// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package processors

// Flags are the host-liveness knobs. A host is online while its last
// heartbeat is within HeartbeatIntervalSecs * ExpiredTimeFactor, offline
// until RemovedThresholdSec, and garbage-collectable beyond that.
type Flags struct {
	HeartbeatIntervalSecs int `json:"heartbeat_interval_secs"`
	ExpiredTimeFactor     int `json:"expired_time_factor"`
	RemovedThresholdSec   int `json:"removed_threshold_sec"`
}

var flags = Flags{
	HeartbeatIntervalSecs: 10,
	ExpiredTimeFactor:     2,
	RemovedThresholdSec:   24 * 60 * 60,
}

func SetFlags(f Flags) {
	if f.HeartbeatIntervalSecs > 0 {
		flags.HeartbeatIntervalSecs = f.HeartbeatIntervalSecs
	}
	if f.ExpiredTimeFactor > 0 {
		flags.ExpiredTimeFactor = f.ExpiredTimeFactor
	}
	if f.RemovedThresholdSec > 0 {
		flags.RemovedThresholdSec = f.RemovedThresholdSec
	}
}

// GitInfoSha is stamped into host records and ListHosts rows.
var GitInfoSha = "unknown"
