package runtime

import (
	"context"
	"log/slog"
	"sort"
)

// Mount — bind-mount каталога хоста в контейнер.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec — параметры запуска контейнера.
type ContainerSpec struct {
	Image   string
	Mounts  []Mount
	Env     map[string]string
	WorkDir string
	Command []string
}

// Docker запускает контейнеры через docker CLI.
type Docker struct {
	binary string
	logger *slog.Logger
}

// NewDocker создаёт Docker. Пустой binary означает "docker" из PATH.
func NewDocker(binary string, logger *slog.Logger) *Docker {
	if binary == "" {
		binary = "docker"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Docker{binary: binary, logger: logger}
}

// Pull скачивает образ.
func (d *Docker) Pull(ctx context.Context, image string) (Result, error) {
	if err := positional("image", image); err != nil {
		return Result{}, err
	}
	d.logger.Debug("docker pull", "image", image)
	return run(ctx, d.binary, "pull", image)
}

// Run запускает контейнер и ждёт его завершения.
// Контейнер удаляется после выхода.
func (d *Docker) Run(ctx context.Context, spec ContainerSpec) (Result, error) {
	if err := positional("image", spec.Image); err != nil {
		return Result{}, err
	}
	d.logger.Debug("docker run", "image", spec.Image, "command", spec.Command)
	return run(ctx, d.binary, runArgs(spec)...)
}

// runArgs строит аргументы docker run. Переменные окружения сортируются.
func runArgs(spec ContainerSpec) []string {
	args := []string{"run", "--rm"}

	for _, m := range spec.Mounts {
		v := m.Source + ":" + m.Target
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	if spec.WorkDir != "" {
		args = append(args, "-w", spec.WorkDir)
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}
