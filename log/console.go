package log

import "go.uber.org/zap"

// ConsolePrinter routes script console output to a zap logger.
// It satisfies the goja_nodejs console Printer interface.
type ConsolePrinter struct {
	L *zap.Logger
}

// NewConsolePrinter returns a printer writing to l tagged with the engine id.
func NewConsolePrinter(l *zap.Logger, engineID uint64) ConsolePrinter {
	return ConsolePrinter{L: Or(l).Named("console").With(zap.Uint64("engine", engineID))}
}

func (p ConsolePrinter) Log(s string)   { p.L.Info(s) }
func (p ConsolePrinter) Warn(s string)  { p.L.Warn(s) }
func (p ConsolePrinter) Error(s string) { p.L.Error(s) }
