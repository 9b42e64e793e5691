// Package cli implements the operator subcommands of the backoffice binary.
// Every command writes human output to Stdout, diagnostics to Stderr and
// returns a process exit code.
package cli

import (
	"io"
	"os"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Output carries the streams and locale used by a command.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
	Lang   language.Tag
}

func (o Output) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

func (o Output) stderr() io.Writer {
	if o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

func (o Output) printer() *message.Printer {
	tag := o.Lang
	if tag == language.Und {
		tag = language.Indonesian
	}
	return message.NewPrinter(tag)
}

// amount formats a decimal with locale grouping and two fraction digits.
func amount(p *message.Printer, d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return p.Sprintf("%.2f", f)
}
