// Command tilecutter renders a single tile or Skadi cell to disk, for manual
// testing and debugging of a catalog/recipe configuration -- explicitly not a
// batch/pyramid driver (see spec.md's Non-goals); bin/render_tile.py and
// examples/*.py are the original Python implementation's equivalent one-shot
// scripts.
package main

import "github.com/marblecutter-go/tilecutter/cmd/tilecutter/cli"

func main() {
	cli.Execute()
}
