// Package iocli ввод-вывод команд, подменяемый в тестах
package iocli

//go:generate moq -out io_mock.go . IO

// IO вывод результатов и чтение подтверждений
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
