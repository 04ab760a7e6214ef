// Command kvindex stores JSON objects in a local key/value store and
// maintains and queries secondary indexes over their fields.
package main

import (
	"log"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Fatalf("kvindex: %v", err)
	}
}
