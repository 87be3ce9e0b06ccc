package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/util"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	noRequestID     = "--------"
	timestampLayout = "2006-01-02 15:04:05"
	logFileName     = "main.log"
)

// outputs owns every writer the logger hands out so they can be closed on exit.
type outputs struct {
	mu       sync.Mutex
	file     *lumberjack.Logger
	ginPipes []*io.PipeWriter
}

var (
	setupOnce sync.Once
	sinks     outputs
)

// LogFormatter renders entries as
// [2026-01-02 15:04:05] [a1b2c3d4] [info ] [server.go:88] message model=gpt-4o
type LogFormatter struct{}

// shownFields are printed after the message in this order; other fields are dropped.
var shownFields = [...]string{"model", "stream", "tier", "kind", "status", "wait", "error"}

func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buf := entry.Buffer
	if buf == nil {
		buf = new(bytes.Buffer)
	}

	fmt.Fprintf(buf, "[%s] [%s] [%-5s] ", entry.Time.Format(timestampLayout), requestIDOf(entry), levelName(entry.Level))
	if entry.Caller != nil {
		fmt.Fprintf(buf, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buf.WriteString(strings.TrimRight(entry.Message, "\r\n"))
	for _, key := range shownFields {
		if value, ok := entry.Data[key]; ok {
			fmt.Fprintf(buf, " %s=%v", key, value)
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func requestIDOf(entry *log.Entry) string {
	if id, _ := entry.Data["request_id"].(string); id != "" {
		return id
	}
	return noRequestID
}

func levelName(level log.Level) string {
	if level == log.WarnLevel {
		return "warn"
	}
	return level.String()
}

// SetupBaseLogger installs LogFormatter on the standard logger and routes gin's
// own output through it. Only the first call has an effect.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		std := log.StandardLogger()
		std.SetOutput(os.Stdout)
		std.SetReportCaller(true)
		std.SetFormatter(&LogFormatter{})

		infoPipe, errorPipe := std.Writer(), std.WriterLevel(log.ErrorLevel)
		sinks.mu.Lock()
		sinks.ginPipes = append(sinks.ginPipes, infoPipe, errorPipe)
		sinks.mu.Unlock()
		gin.DefaultWriter, gin.DefaultErrorWriter = infoPipe, errorPipe
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			std.Infof(strings.TrimRight(format, "\r\n"), values...)
		}

		log.RegisterExitHandler(sinks.closeAll)
	})
}

// ResolveLogDirectory returns WRITABLE_PATH/logs when set, else the XDG state directory.
func ResolveLogDirectory() string {
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, "logs")
	}
	return config.DefaultLogDir()
}

// ConfigureLogOutput points the standard logger at a rotating file when
// logging-to-file is on, and back at stdout otherwise. Safe to call on every reload.
func ConfigureLogOutput(cfg *config.Config) error {
	SetupBaseLogger()

	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	sinks.closeFile()

	if !cfg.LoggingToFile {
		log.SetOutput(os.Stdout)
		return nil
	}
	dir := ResolveLogDirectory()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log directory %s: %w", dir, err)
	}
	sinks.file = &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     14,
	}
	log.SetOutput(sinks.file)
	return nil
}

// closeFile expects o.mu to be held.
func (o *outputs) closeFile() {
	if o.file != nil {
		_ = o.file.Close()
		o.file = nil
	}
}

func (o *outputs) closeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeFile()
	for _, pipe := range o.ginPipes {
		_ = pipe.Close()
	}
	o.ginPipes = nil
}
