package app

import (
	"fmt"
	"io"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandSweep       Command = "sweep"
	CommandHealthcheck Command = "healthcheck"
	CommandHelp        Command = "help"
)

// commands はサブコマンドと一行説明。Usageの表示順でもある。
var commands = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "HTTP APIとWebSocket通知を提供する（既定）"},
	{CommandWorker, "進行中の対局の定期スイープと最終アクセス記録の削除を行う"},
	{CommandMigrate, "PostgreSQLのスキーマを最新にする"},
	{CommandSweep, "スイープを1回だけ実行して終了する"},
	{CommandHealthcheck, "起動中のサーバーの /health を確認する（distroless用）"},
	{CommandHelp, "この一覧を表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。2つ目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	name := args[0]
	if name == "-h" || name == "--help" {
		return CommandHelp, nil
	}
	for _, c := range commands {
		if string(c.cmd) == name {
			return c.cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (run \"banmen help\")", name)
}

// WriteUsage はサブコマンドの一覧をwに書き出す。
func WriteUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("usage: banmen [command]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.summary)
	}
	io.WriteString(w, b.String())
}
