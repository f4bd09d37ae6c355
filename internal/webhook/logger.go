package webhook

import (
	"io"

	"github.com/labstack/gommon/log"
)

var discard = func() *log.Logger {
	l := log.New("webhook")
	l.SetOutput(io.Discard)
	return l
}()
