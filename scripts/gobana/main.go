package main

import (
	"OFSpectra/internal/model"
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

func decodeFile(path string, v interface{}) {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("Unable to open file: %v", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		log.Fatalf("Failed to decode gob data from %s: %v", path, err)
	}
}

// gobana prints a snapshot directory written by the gob export writer.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <snapshot_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]

	var protocols model.ProtocolStats
	decodeFile(filepath.Join(dir, "protocols.dat"), &protocols)

	fmt.Println("Protocols:")
	for _, tag := range model.AllTags {
		c := protocols[tag]
		fmt.Printf("  %-6s packets=%d bytes=%d\n", tag, c.Packets, c.Bytes)
	}

	files, err := filepath.Glob(filepath.Join(dir, "switch_*.dat"))
	if err != nil {
		log.Fatalf("Failed to list switch files: %v", err)
	}
	sort.Strings(files)
	for _, path := range files {
		var sw model.SwitchSnapshot
		decodeFile(path, &sw)
		fmt.Printf("Switch %d (%s): %d flows, %d ports\n", sw.DPID, sw.State, len(sw.Flows), len(sw.Ports))
		for _, f := range sw.Flows {
			fmt.Printf("  priority=%d %s protocol=%s packets=%d bytes=%d\n", f.Priority, f.Match, f.Protocol, f.Packets, f.Bytes)
		}
		for _, p := range sw.Ports {
			fmt.Printf("  port=%d rx=%d tx=%d\n", p.PortNo, p.RxBytes, p.TxBytes)
		}
	}
}
