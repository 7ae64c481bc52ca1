/*
Package types defines vecton's domain model: peers, collection
configuration, aliases, shards, replica state, and shard transfers.

These types are shared by pkg/catalog, pkg/consensus, pkg/collection and
pkg/replicaset; none of them owns synchronization — callers lock at
whatever granularity the operation needs, across collection, shard and
replica.
*/
package types
