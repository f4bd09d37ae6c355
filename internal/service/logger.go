package service

import (
	"io"

	"github.com/labstack/gommon/log"
)

var discard = func() *log.Logger {
	l := log.New("finsync")
	l.SetOutput(io.Discard)
	return l
}()

func loggerOr(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return discard
}
