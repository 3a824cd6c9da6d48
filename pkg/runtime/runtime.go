package runtime

import (
	"fmt"

	"github.com/adrg/xdg"
)

const (
	XDGName = "asynctable"
)

func File(filename string) (string, error) {
	return xdg.RuntimeFile(fmt.Sprintf("%s/%s", XDGName, filename))
}

// LogFile is where the terminal app writes its log, since it owns the
// terminal.
func LogFile() (string, error) {
	return File("asynctable.log")
}
