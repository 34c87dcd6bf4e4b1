// Package cli is the pantry command-line shell.
//
// Every subcommand opens the client (see app.NewApp), does its work and
// closes it again, so a session persisted by one invocation is resumed by the
// next. "pantry shell" keeps one client open and reads commands from stdin.
//
// Commands:
//
//	register, verify, login, logout, status
//	profile [--refresh], profile update, profile avatar <file>
//	recipes, recipes generate <ingredient>...
//	get <path> [--strategy network|cache-first|network-first]
//	cache stats|sweep|clear
//	shell, version
package cli
