// Package logger provides leveled console logging for rimu.
//
// The logger supports multiple verbosity levels controlled by command-line
// flags. Output is formatted with colored level prefixes.
//
// # Verbosity Levels
//
//   - --verbose: shows info messages
//   - --debug: shows all messages including debug details
//
// Warnings and errors are always shown.
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Stored %d chunks", count)
//
// Library packages take a Logger in their options structs. Messages may name
// chunk IDs, paths and key fingerprints but must never include plaintext or
// key bytes.
package logger
