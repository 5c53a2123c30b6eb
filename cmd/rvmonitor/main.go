// Command rvmonitor is a live register/CSR inspector for a running rvsim
// process's snapshot files: it polls the .re_regs sidecar written by
// internal/snapshot and redraws a terminal panel of PC, integer/FP
// registers, every CSR the sidecar lists, and the memory ranges.
// This gives tcell, scaffolded but never imported in the teacher's
// repository, an exercised home.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
)

func main() {
	path := flag.String("regs", "", "path to a .re_regs sidecar produced by rvsim -dump")
	interval := flag.Duration("interval", 500*time.Millisecond, "poll interval")
	flag.Parse()

	if *path == "" {
		log.Fatal("rvmonitor: -regs is required")
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("rvmonitor: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("rvmonitor: %v", err)
	}
	defer screen.Fini()

	events := make(chan tcell.Event, 16)
	go screen.ChannelEvents(events, nil)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		regs, err := readRegs(*path)
		if err != nil {
			draw(screen, nil, err)
		} else {
			draw(screen, regs, nil)
		}

		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-ticker.C:
		}
	}
}

// readRegs parses the key:hex text sidecar format written by
// internal/snapshot's writeRegs.
func readRegs(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, sc.Err()
}

var style = tcell.StyleDefault
var headerStyle = style.Bold(true).Foreground(tcell.ColorYellow)
var errStyle = style.Foreground(tcell.ColorRed)

func draw(screen tcell.Screen, regs map[string]string, err error) {
	screen.Clear()
	row := 0
	emit := func(s string, st tcell.Style) {
		for col, r := range s {
			screen.SetContent(col, row, r, nil, st)
		}
		row++
	}

	emit("rvmonitor — press q to quit", headerStyle)
	row++

	if err != nil {
		emit(fmt.Sprintf("error reading snapshot: %v", err), errStyle)
		screen.Show()
		return
	}

	emit(fmt.Sprintf("pc:  %s", regs["pc"]), style)
	emit(fmt.Sprintf("priv: %s   insn_counter: %s", regs["priv"], regs["insn_counter"]), style)
	row++

	emit("integer registers", headerStyle)
	for i := 0; i < 32; i += 4 {
		var b strings.Builder
		for j := i; j < i+4; j++ {
			fmt.Fprintf(&b, "x%-2d=%-18s", j, regs[fmt.Sprintf("reg_x%d", j)])
		}
		emit(b.String(), style)
	}
	row++

	emit("fp registers", headerStyle)
	for i := 0; i < 32; i += 4 {
		var b strings.Builder
		for j := i; j < i+4; j++ {
			fmt.Fprintf(&b, "f%-2d=%-18s", j, regs[fmt.Sprintf("reg_f%d", j)])
		}
		emit(b.String(), style)
	}
	row++

	emit("csrs", headerStyle)
	var csrKeys []string
	for k := range regs {
		if strings.HasPrefix(k, "csr_") {
			csrKeys = append(csrKeys, k)
		}
	}
	sort.Strings(csrKeys)
	for _, k := range csrKeys {
		emit(fmt.Sprintf("%-18s %s", strings.TrimPrefix(k, "csr_"), regs[k]), style)
	}
	row++

	var mranges []string
	for k, v := range regs {
		if strings.HasPrefix(k, "mrange") {
			mranges = append(mranges, k+" "+v)
		}
	}
	if len(mranges) > 0 {
		emit("memory ranges", headerStyle)
		sort.Strings(mranges)
		for _, m := range mranges {
			emit(m, style)
		}
	}

	screen.Show()
}

// parseHex64 is a small helper kept for callers that want the raw uint64
// rather than the display string; unused by draw but kept alongside
// readRegs for future CSR-aware rendering (e.g. decoding mstatus fields).
func parseHex64(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
