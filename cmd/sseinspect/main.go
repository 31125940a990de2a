// Command sseinspect decodes a captured SSE byte stream from stdin,
// one chunk per read, and prints each decoded event as a readable
// line — the offline counterpart to the engine's live RoundTrip path,
// useful for inspecting a recording without a running client.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/omalloc/ssedeliver/api/defined/v1/sse"
	"github.com/omalloc/ssedeliver/internal/adapter"
	"github.com/omalloc/ssedeliver/internal/filter"
)

var marker = map[int]string{
	0: "SessionLogID",
	1: "ElementType",
	2: "Result",
	3: "Extra",
	4: "IsHistory",
}

func main() {
	raw := flag.Bool("raw", false, "print the decoded Event struct instead of the field-numbered form.")
	splitLines := flag.Bool("split-result-lines", false, "expand an event with a multi-line Result into one event per line, via FilterService.")
	flag.Parse()

	a := adapter.New()

	var f *filter.Service
	if *splitLines {
		f = filter.New(splitResultLines)
	} else {
		f = filter.New(nil)
	}

	in := bufio.NewReader(os.Stdin)
	buf := make([]byte, 4096)

	for {
		n, err := in.Read(buf)
		if n > 0 {
			for _, ev := range a.Feed(string(buf[:n])) {
				for _, expanded := range f.Resolve(context.Background(), ev) {
					print(expanded, *raw)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "sseinspect: read error: %v\n", err)
			return
		}
	}
}

// splitResultLines expands an event with a multi-line Result into one
// event per line, leaving single-line events untouched.
func splitResultLines(_ context.Context, ev sse.Event) []sse.Event {
	lines := strings.Split(ev.Result, "\n")
	if len(lines) <= 1 {
		return []sse.Event{ev}
	}
	out := make([]sse.Event, 0, len(lines))
	for _, line := range lines {
		split := ev
		split.Result = line
		out = append(out, split)
	}
	return out
}

func print(ev sse.Event, raw bool) {
	if raw {
		fmt.Printf("%+v\n", ev)
		return
	}

	fields := []string{ev.SessionLogID, ev.ElementType, ev.Result, ev.Extra, fmt.Sprint(ev.IsHistory)}
	for i, field := range fields {
		fmt.Printf("(%d)%s: %s\n", i, marker[i], field)
	}
	fmt.Println()
}
