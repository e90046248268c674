// Package cluster tracks what this node has learned about its peers.
//
// This package handles:
//   - Introductions and the ruling epoch declared by the coordinator
//   - Loading and sync announcements from other nodes
//   - Coordinator election (static or ZooKeeper backed)
package cluster
