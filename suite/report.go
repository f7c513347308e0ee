package suite

import (
	"strings"

	"boardtest-go/board"
	"boardtest-go/console"
)

// Banner prints the suite header and the full pin list.
func Banner(con *console.Console, d *board.Directory) {
	rule := strings.Repeat("*", 70)
	con.Println()
	con.Println(rule)
	con.Println("*" + center("Welcome to the board test suite!", 68) + "*")
	con.Println("*" + center("Follow the directions to run each test.", 68) + "*")
	con.Println(rule)
	con.Println()
	con.Printf("All pins found: %s\n\n", strings.Join(d.Names(), " "))
}

// Report prints aligned verdicts followed by the tested and untested pins.
func Report(con *console.Console, d *board.Directory, t *Tally) {
	con.Title("@)}---^-----  TEST RESULTS  -----^---{(@")
	con.Println()

	width := 0
	for _, e := range t.Entries() {
		width = max(width, len(e.Name))
	}
	for _, e := range t.Entries() {
		pad := strings.Repeat(" ", width-len(e.Name))
		con.Printf("%s: %s%s\n", e.Name, pad, con.Verdict(e.Result.Verdict))
	}
	con.Println()

	tested, untested := t.Partition(d)
	con.Printf("The following pins were tested: %s\n\n", strings.Join(tested, " "))
	con.Printf("The following pins were NOT tested: %s\n\n", strings.Join(untested, " "))
}

func center(s string, w int) string {
	if len(s) >= w {
		return s
	}
	left := (w - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", w-len(s)-left)
}
