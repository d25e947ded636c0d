package iocli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Stdio IO поверх потоков команды
type Stdio struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdio создает IO. В cobra сюда передаются cmd.InOrStdin() и cmd.OutOrStdout().
func NewStdio(in io.Reader, out io.Writer) IO {
	return &Stdio{in: bufio.NewReader(in), out: out}
}

func (s *Stdio) Println(a ...any) {
	fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}

// ReadInput печатает prompt и читает строку. Конец ввода без перевода строки не ошибка.
func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}
