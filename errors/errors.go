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

package errors

import "errors"

var (
	ErrSpaceNotExist = errors.New("space does not exist")
	ErrSpaceExisted  = errors.New("space is already created")

	ErrTagNotExist  = errors.New("tag does not exist")
	ErrEdgeNotExist = errors.New("edge does not exist")

	ErrIndexNotExist = errors.New("index does not exist")
	ErrIndexExisted  = errors.New("index is already created")
	ErrIndexConflict = errors.New("operation conflicts with an existing index")

	ErrSchemaNotFound = errors.New("schema not found")

	ErrNoActiveHosts = errors.New("no active hosts")

	ErrPlanShape = errors.New("index scan plan error")

	ErrNotFound = errors.New("not found")
)
