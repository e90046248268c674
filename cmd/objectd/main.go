// Command objectd runs one node of the replicated object-model store
// control plane.
package main

func main() {
	Execute()
}
