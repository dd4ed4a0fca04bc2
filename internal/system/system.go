package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

func InitResourceLimits(logger zerolog.Logger) {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("[!] Не удалось получить лимит файлов")
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("[!] Не удалось установить лимит файлов")
	} else {
		logger.Debug().Uint64("limit", rLimit.Cur).Msg("[*] Системный лимит открытых файлов увеличен")
	}
}

// FindLatest возвращает самый свежий файл в dir с одним из расширений exts.
// Если path указывает на файл, поиск идет в его директории.
func FindLatest(path string, exts ...string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	searchDir := path
	if !fi.IsDir() {
		searchDir = filepath.Dir(path)
	}

	files, err := os.ReadDir(searchDir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(searchDir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено файлов %s", searchDir, strings.Join(exts, ", "))
	}

	return latestFile, nil
}

func hasExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

var (
	encoderOnce sync.Once
	encoderName string
)

// BestH264Encoder выбирает аппаратный H.264 энкодер, если ffmpeg его
// поддерживает. Результат кэшируется на время жизни процесса.
func BestH264Encoder(binary string) string {
	encoderOnce.Do(func() {
		encoderName = detectH264Encoder(binary)
	})
	return encoderName
}

func detectH264Encoder(binary string) string {
	// Приоритеты:
	// 1. MacOS (VideoToolbox)
	// 2. NVIDIA (NVENC)
	// 3. Software (libx264)
	if binary == "" {
		binary = "ffmpeg"
	}
	out, err := exec.Command(binary, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

// MemoryError сообщает, что для буферов кадров не хватает памяти.
type MemoryError struct {
	Need      uint64
	Available uint64
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("not enough memory: need %d MiB, available %d MiB", e.Need>>20, e.Available>>20)
}

// CheckMemory проверяет, что в системе свободно не меньше need байт.
// Если статистику получить не удалось, проверка пропускается.
func CheckMemory(ctx context.Context, need uint64) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil
	}
	if vm.Available < need {
		return &MemoryError{Need: need, Available: vm.Available}
	}
	return nil
}
