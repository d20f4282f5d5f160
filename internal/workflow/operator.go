// internal/workflow/operator.go

package workflow

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Operator is the human boundary of a turn. Implementations surface agent
// output and collect exactly one answer per question. Ask blocks until the
// human responds; the workflow has no approval timeout.
type Operator interface {
	Print(text string)
	Ask(prompt string) (string, error)
}

// TerminalOperator is the stdin/stdout Operator used by the REPL.
type TerminalOperator struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalOperator creates a TerminalOperator reading answers from in
// and writing agent output to out.
func NewTerminalOperator(in io.Reader, out io.Writer) *TerminalOperator {
	return &TerminalOperator{in: bufio.NewReader(in), out: out}
}

func (t *TerminalOperator) Print(text string) {
	fmt.Fprintln(t.out, text)
}

func (t *TerminalOperator) Ask(prompt string) (string, error) {
	fmt.Fprintln(t.out, prompt)
	fmt.Fprint(t.out, "approve? > ")
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
