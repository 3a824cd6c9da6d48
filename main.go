package main

import (
	_ "expvar"
	_ "net/http/pprof"

	"github.com/byxorna/asynctable/cmd"
)

func main() {
	cmd.Execute()
}
