/*
 *
 * Copyright 2023 CubeFS authors.
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

/*

# GraphDB: a distributed graph database's control plane

GraphDB partitions graph data - tagged vertices and typed edges - across
storage nodes, replicates each partition via raft, and runs a metadata
service that catalogs spaces, schemas, indexes, hosts, partitions and
snapshots.

## Data Model

* Space, the top-level graph namespace: partition count, replica factor, vid type

* Tag, a vertex type with versioned columns

* Edge type, a directed edge type with versioned columns

* Index, an ordered column list over a tag or edge

* Snapshot/Backup, a named consistent capture of catalog and storage state

## Architecture

Two server roles:

* Meta - the catalog service: one replicated KV partition holds every
  catalog record; mutations go through processors that serialize on named
  locks and commit single replicated batches

* Storage - serves graph partitions; the index lookup planner compiles an
  index query into a scan/decode/filter/dedup/aggregate pipeline

Every server provides endpoints via gRPC, plus prometheus metrics over HTTP.

### Replication

raft (etcd raft/v3) under the catalog KV facade

### Storage

rocksdb, with a btree-backed in-memory engine for tests and standalone runs

## Building Blocks

* gRPC
* Rocksdb
* etcd raft
* Prometheus

*/

package graphdb
