// Command loom manages a shared queue of research topics and runs the
// workers that process them. Queue commands manipulate the record store
// directly; run starts a claim-and-process worker loop.
package main
