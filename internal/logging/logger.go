package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// crashDir is where crash reports end up, relative to the working directory
const crashDir = "logs/crash/"

// maxRecentLogs is how many log lines the ring buffer keeps for crash reports
const maxRecentLogs = 20

type Logger struct {
	mu       sync.Mutex
	logs     []string
	logIndex int
}

var instance *Logger
var once sync.Once

// Initializes the static logger which records the last few log lines for
// crash reports
func InitLogger() {
	once.Do(func() {
		instance = &Logger{
			logs: make([]string, maxRecentLogs),
		}
	})
}

// Singleton method to make sure theres only one instance of logger
func GetLogger() *Logger {
	if instance == nil {
		panic("Logger not initialized. Call InitLogger() first.")
	}
	return instance
}

// Log something to terminal in the 2006-01-02 15:04:05 format
func (l *Logger) Log(level, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	formattedMessage := fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)
	fmt.Println(formattedMessage)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs[l.logIndex] = formattedMessage
	l.logIndex = (l.logIndex + 1) % maxRecentLogs
}

func (l *Logger) Info(message string) {
	l.Log("INFO", message)
}

func (l *Logger) Warn(message string) {
	l.Log("WARN", message)
}

func (l *Logger) Error(message string) {
	l.Log("ERROR", message)
}

func (l *Logger) Infof(format string, args ...any) {
	l.Log("INFO", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Log("ERROR", fmt.Sprintf(format, args...))
}

// Global recovery system
func (l *Logger) RecoverAndLogPanic() {
	if r := recover(); r != nil {
		l.WriteCrashFile(r)
	}
}

// Write the recent logs plus the panic value to a crash file
func (l *Logger) WriteCrashFile(r any) {
	recentLogs := l.GetRecentLogs()

	if err := os.MkdirAll(crashDir, os.ModePerm); err != nil {
		fmt.Printf("Failed to create log directory: %v\n", err)
		return
	}

	timestamp := time.Now().Format("20060102-150405")
	crashFile := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", timestamp))
	file, err := os.Create(crashFile)
	if err != nil {
		fmt.Printf("Failed to create crash file: %v\n", err)
		return
	}
	defer file.Close()

	file.WriteString("==== Crash Report ====\n")
	file.WriteString(fmt.Sprintf("Time: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	file.WriteString(fmt.Sprintf("Panic: %v\n\n", r))
	file.WriteString("==== Recent Logs ====\n")
	for _, line := range recentLogs {
		file.WriteString(line + "\n")
	}
}

// Get the recent logs stored in the ring buffer, oldest first
func (l *Logger) GetRecentLogs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var recentLogs []string
	for i := 0; i < maxRecentLogs; i++ {
		index := (l.logIndex + i) % maxRecentLogs
		if l.logs[index] != "" {
			recentLogs = append(recentLogs, l.logs[index])
		}
	}
	return recentLogs
}
