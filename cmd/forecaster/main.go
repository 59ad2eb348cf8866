// Command forecaster forecasts High/Low dice rounds from the command line or over HTTP.
package main

import (
	"os"

	"hilo-forecaster/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
