package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/ivlev/scene2video/internal/bezel"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/engine"
	"github.com/ivlev/scene2video/internal/filtergraph"
	"github.com/ivlev/scene2video/internal/logging"
	"github.com/ivlev/scene2video/internal/metrics"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/transcoder"
)

func main() {
	cfg := parseFlags()

	logger := logging.New(cfg.LogLevel, isTerminal(os.Stderr))

	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits(logger)

	if err := run(cfg, logger); err != nil {
		var exe *transcoder.ExecutionError
		if errors.As(err, &exe) {
			// Полный вывод ffmpeg нужен для отладки графа фильтров
			fmt.Fprintln(os.Stderr, exe.Output)
		}
		logger.Fatal().Err(err).Msg("[-] Ошибка проекта")
	}
}

func parseFlags() *config.Config {
	cfg := &config.Config{}
	flag.StringVar(&cfg.ScenePath, "scene", "", "Шаблон сцены YAML (по умолчанию: самый свежий в input/scenes/)")
	flag.StringVar(&cfg.InputPath, "input", "", "Медиафайл или папка, если шаблон не задан (по умолчанию: input/media/)")
	flag.StringVar(&cfg.BezelsPath, "bezels", "", "Каталог рамок устройств YAML")
	flag.StringVar(&cfg.OutputPath, "out", "", "Путь к результату (если пусто, генерируется автоматически в output/)")
	flag.StringVar(&cfg.Format, "format", "", "Формат: "+strings.Join(filtergraph.Names(), ", "))
	flag.StringVar(&cfg.Backend, "backend", "", "Бэкенд анимации: graph, frames (по умолчанию: по формату)")
	flag.IntVar(&cfg.FPS, "fps", 0, "FPS (0 - из шаблона)")
	flag.IntVar(&cfg.MaxSize, "max-size", 0, "Длинная сторона результата в пикселях (0 - из шаблона)")
	flag.IntVar(&cfg.Quality, "quality", 0, "Качество (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	flag.StringVar(&cfg.Preset, "preset", "", "Соотношение сторон: 16:9, 9:16, 4:5, 1:1 или W:H")
	flag.StringVar(&cfg.Background, "background", "", "Цвет фона #RRGGBB")
	flag.IntVar(&cfg.Padding, "padding", 0, "Отступ от краев в пикселях")
	flag.IntVar(&cfg.Spacing, "spacing", 0, "Расстояние между медиа в пикселях")
	flag.Float64Var(&cfg.PreviewAt, "preview-at", -1, "Сохранить PNG кадр в момент времени (сек) вместо конвертации")
	flag.BoolVar(&cfg.WriteTemplate, "write-template", false, "Сохранить итоговый шаблон сцены в output/")
	flag.StringVar(&cfg.MetricsOut, "metrics-out", "", "Файл метрик Prometheus (textfile collector)")
	flag.StringVar(&cfg.LogLevel, "log-level", logging.LevelFromEnv("info"), "Уровень логов: trace, debug, info, warn, error")
	flag.BoolVar(&cfg.KeepTemp, "keep-temp", false, "Не удалять временные файлы")
	flag.StringVar(&cfg.FFmpeg, "ffmpeg", "ffmpeg", "Путь к ffmpeg")
	flag.StringVar(&cfg.VideoEncoder, "encoder", "", "H.264 энкодер (по умолчанию: лучший доступный)")
	flag.Parse()
	return cfg
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Создаем нужные директории, если их нет
	for _, d := range []string{"input/scenes", "input/media", "output"} {
		os.MkdirAll(d, 0755)
	}

	if cfg.ScenePath == "" && cfg.InputPath == "" {
		if latest, err := scene.FindLatestTemplate("input/scenes"); err == nil {
			cfg.ScenePath = latest
			logger.Info().Str("path", latest).Msg("[*] Выбран шаблон")
		} else {
			cfg.InputPath = "input/media"
		}
	}

	s, err := cfg.LoadScene()
	if err != nil {
		return err
	}
	if err := cfg.Apply(s); err != nil {
		return err
	}

	var catalog *bezel.Catalog
	if cfg.BezelsPath != "" {
		if catalog, err = bezel.Load(cfg.BezelsPath); err != nil {
			return fmt.Errorf("ошибка загрузки рамок: %w", err)
		}
	}

	tc := transcoder.New(cfg.FFmpeg, logger)
	if !tc.Available() {
		logger.Warn().Str("binary", cfg.FFmpeg).Msg("[!] ffmpeg не найден, доступны только png/jpg и превью")
	}

	encoderName := cfg.VideoEncoder
	if encoderName == "" && tc.Available() {
		encoderName = system.BestH264Encoder(cfg.FFmpeg)
		if encoderName != "libx264" {
			logger.Info().Str("encoder", encoderName).Msg("[*] Обнаружено аппаратное ускорение")
		}
	}
	if s.Options.Quality == 0 && (s.Format == "" || s.Format == "mp4") {
		switch encoderName {
		case "h264_videotoolbox":
			s.Options.Quality = 75 // Хорошее качество для VideoToolbox
		case "h264_nvenc":
			s.Options.Quality = 28 // Эквивалент CRF для NVENC
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lastReport time.Time
	project, err := engine.NewProject(ctx, s, engine.Options{
		Catalog:    catalog,
		Transcoder: tc,
		Encoder:    encoderName,
		Backend:    filtergraph.Backend(cfg.Backend),
		KeepTemp:   cfg.KeepTemp,
		Logger:     logger,
		OnProgress: func(p engine.Progress) {
			if time.Since(lastReport) < time.Second && p.Fraction < 1 {
				return
			}
			lastReport = time.Now()
			logger.Info().
				Int("frame", p.Frame).
				Float64("speed", p.Speed).
				Msgf("[>] Готово: %.0f%%", p.Fraction*100)
		},
	})
	if err != nil {
		return err
	}
	defer project.Close()

	if cfg.WriteTemplate {
		path := scene.GenerateTemplatePath("output")
		if err := scene.WriteTemplate(scene.ToTemplate(project.Scene()), path); err != nil {
			return fmt.Errorf("ошибка записи шаблона: %w", err)
		}
		logger.Info().Str("path", path).Msg("[+] Шаблон сохранен")
	}

	if cfg.PreviewAt >= 0 {
		img, err := project.Preview(ctx, cfg.PreviewAt)
		if err != nil {
			return err
		}
		out := outputPath(cfg, "png")
		if err := imaging.Save(img, out); err != nil {
			return err
		}
		logger.Info().Str("path", out).Msg("[+++] Превью сохранено")
		return writeMetrics(cfg, logger)
	}

	result, err := project.Convert(ctx)
	if err != nil {
		writeMetrics(cfg, logger)
		return err
	}
	out := cfg.OutputPath
	if out == "" {
		out = filepath.Join("output", result.Name)
	}
	if err := os.WriteFile(out, result.Data, 0644); err != nil {
		return err
	}
	logger.Info().Str("path", out).Str("mime", result.MIME).Msg("[+++] Успех!")
	return writeMetrics(cfg, logger)
}

func outputPath(cfg *config.Config, ext string) string {
	if cfg.OutputPath != "" {
		return cfg.OutputPath
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("preview_%s.%s", timestamp, ext))
}

func writeMetrics(cfg *config.Config, logger zerolog.Logger) error {
	if cfg.MetricsOut == "" {
		return nil
	}
	if err := metrics.WriteToTextfile(cfg.MetricsOut); err != nil {
		logger.Warn().Err(err).Msg("[!] Не удалось записать метрики")
		return nil
	}
	logger.Debug().Str("path", cfg.MetricsOut).Msg("metrics written")
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
