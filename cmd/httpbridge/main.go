// Command httpbridge serves HTTP requests through the request bridge.
package main

import "github.com/Sentinel-Gate/httpbridge/cmd/httpbridge/cmd"

func main() {
	cmd.Execute()
}
