package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrUnsafeArgument — позиционный аргумент выглядит как опция.
var ErrUnsafeArgument = errors.New("unsafe argument")

// positional проверяет, что value не будет разобрано как флаг.
func positional(name, value string) error {
	if value == "" || value[0] == '-' {
		return fmt.Errorf("%w: %s %q", ErrUnsafeArgument, name, value)
	}
	return nil
}

// Result — итог внешнего процесса.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK возвращает true при нулевом коде выхода.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// run выполняет binary с аргументами и собирает вывод.
func run(ctx context.Context, binary string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", binary, ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("start %s: %w", binary, err)
	}
}
