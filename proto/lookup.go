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

// Value is a column value: nil, bool, int64, float64 or string.
type Value = interface{}

type Row struct {
	Values []Value `json:"values"`
}

// DataSet is the tabular result of an index lookup.
type DataSet struct {
	ColNames []string `json:"col_names"`
	Rows     []Row    `json:"rows"`
}

type ScanType int32

const (
	ScanTypePrefix ScanType = iota
	ScanTypeRange
)

// IndexColumnHint constrains the scan key range on one indexed column.
type IndexColumnHint struct {
	ColumnName string   `json:"column_name"`
	ScanType   ScanType `json:"scan_type"`
	BeginValue Value    `json:"begin_value,omitempty"`
	EndValue   Value    `json:"end_value,omitempty"`
}
