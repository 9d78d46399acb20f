// Package version хранит build-информацию, заполняемую через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает semver-версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает git commit сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// Info возвращает полную build-информацию одним вызовом.
func Info() (v, c, d string) { return version, commit, date }

// String возвращает build-информацию в одну строку для логов.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
