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

package proto

// ErrorCode is the single result code every meta processor reports through
// its response. Codes are stable across releases.
type ErrorCode int32

const (
	Succeeded ErrorCode = 0

	ErrCodeNotFound         ErrorCode = -1
	ErrCodeExisted          ErrorCode = -2
	ErrCodeLeaderChanged    ErrorCode = -3
	ErrCodeStoreFailure     ErrorCode = -4
	ErrCodeRPCFailure       ErrorCode = -5
	ErrCodeConflict         ErrorCode = -6
	ErrCodeInvalidOperation ErrorCode = -7
	ErrCodeUnknown          ErrorCode = -8

	ErrCodeSpaceNotFound ErrorCode = -20
	ErrCodeTagNotFound   ErrorCode = -21
	ErrCodeEdgeNotFound  ErrorCode = -22
	ErrCodeIndexNotFound ErrorCode = -23
	ErrCodeNoHosts       ErrorCode = -24
	ErrCodeInvalidHost   ErrorCode = -25
	ErrCodeNoValidHost   ErrorCode = -26

	ErrCodeBackupBuildingIndex ErrorCode = -40
	ErrCodeBackupSpaceNotFound ErrorCode = -41
	ErrCodeBackupFailure       ErrorCode = -42
	ErrCodeBlockWriteFailure   ErrorCode = -43
	ErrCodeSnapshotFailure     ErrorCode = -44
)

var codeNames = map[ErrorCode]string{
	Succeeded:                  "SUCCEEDED",
	ErrCodeNotFound:            "E_NOT_FOUND",
	ErrCodeExisted:             "E_EXISTED",
	ErrCodeLeaderChanged:       "E_LEADER_CHANGED",
	ErrCodeStoreFailure:        "E_STORE_FAILURE",
	ErrCodeRPCFailure:          "E_RPC_FAILURE",
	ErrCodeConflict:            "E_CONFLICT",
	ErrCodeInvalidOperation:    "E_INVALID_OPERATION",
	ErrCodeUnknown:             "E_UNKNOWN",
	ErrCodeSpaceNotFound:       "E_SPACE_NOT_FOUND",
	ErrCodeTagNotFound:         "E_TAG_NOT_FOUND",
	ErrCodeEdgeNotFound:        "E_EDGE_NOT_FOUND",
	ErrCodeIndexNotFound:       "E_INDEX_NOT_FOUND",
	ErrCodeNoHosts:             "E_NO_HOSTS",
	ErrCodeInvalidHost:         "E_INVALID_HOST",
	ErrCodeNoValidHost:         "E_NO_VALID_HOST",
	ErrCodeBackupBuildingIndex: "E_BACKUP_BUILDING_INDEX",
	ErrCodeBackupSpaceNotFound: "E_BACKUP_SPACE_NOT_FOUND",
	ErrCodeBackupFailure:       "E_BACKUP_FAILURE",
	ErrCodeBlockWriteFailure:   "E_BLOCK_WRITE_FAILURE",
	ErrCodeSnapshotFailure:     "E_SNAPSHOT_FAILURE",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "E_UNKNOWN"
}

func (c ErrorCode) OK() bool {
	return c == Succeeded
}
