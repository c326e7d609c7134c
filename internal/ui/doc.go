// Package ui formats rimu's terminal output.
//
// Each formatter marks one kind of content. With a color terminal it is
// colorized; with NO_COLOR set or a dumb terminal it falls back to plain
// markers so the meaning survives:
//
//	ui.Code.Sprint("rimu sync")         // `rimu sync`
//	ui.Highlight.Sprint("laptop")       // 'laptop'
//	ui.Fingerprint.Sprint("9f2c1a0b")   // [9f2c1a0b]
//	ui.Conflict.Sprint("/a.md.conflict-ab12")  // !/a.md.conflict-ab12
//	ui.Muted.Sprint("this device")      // (this device)
//
// Bytes and Count render sizes and counted nouns.
package ui
