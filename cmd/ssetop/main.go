package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	terminal "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/omalloc/ssedeliver/metrics"
)

var (
	endpoint     = ""
	tickInterval = time.Second
)

func init() {
	flag.StringVar(&endpoint, "endpoint", "http://localhost:8080/metrics", "Prometheus text-exposition endpoint of a running engine.")
	flag.DurationVar(&tickInterval, "interval", time.Second, "Polling interval.")
}

func main() {
	flag.Parse()
	newDashboard()
}

// snapshot is one poll's worth of parsed metric families, reduced down
// to the fields the dashboard draws.
type snapshot struct {
	connectionState  float64
	cacheDepth       map[string]float64
	admittedByType   map[string]float64
	deliveredTotal   float64
	droppedTotal     float64
}

func fetchSnapshot(client *http.Client) (*snapshot, error) {
	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &snapshot{
		cacheDepth:     make(map[string]float64),
		admittedByType: make(map[string]float64),
	}

	for name, mf := range families {
		switch name {
		case "ssedeliver_connection_state":
			for _, m := range mf.GetMetric() {
				out.connectionState = m.GetGauge().GetValue()
			}
		case "ssedeliver_cache_depth":
			for _, m := range mf.GetMetric() {
				out.cacheDepth[labelValue(m, "buffer")] = m.GetGauge().GetValue()
			}
		case "ssedeliver_events_admitted_total":
			for _, m := range mf.GetMetric() {
				out.admittedByType[labelValue(m, "element_type")] = m.GetCounter().GetValue()
			}
		case "ssedeliver_events_delivered_total":
			for _, m := range mf.GetMetric() {
				out.deliveredTotal += m.GetCounter().GetValue()
			}
		case "ssedeliver_events_dropped_total":
			for _, m := range mf.GetMetric() {
				out.droppedTotal += m.GetCounter().GetValue()
			}
		}
	}
	return out, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func connectionStateName(v float64) string {
	switch int(v) {
	case 0:
		return "connectActive"
	case 1:
		return "connectIdle"
	case 2:
		return "connectException"
	case 3:
		return "connectSuspend"
	case 4:
		return "disconnectRepairing"
	case 5:
		return "disconnectError"
	case 6:
		return "disconnectNormal"
	default:
		return "unknown"
	}
}

func newDashboard() {
	if err := terminal.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize termui: %v\n", err)
		os.Exit(1)
	}
	defer terminal.Close()

	termWidth, _ := terminal.TerminalDimensions()

	hotList := widgets.NewList()
	hotList.Title = "Admitted by Element Type"
	hotList.SetRect(0, 12, termWidth, 30)
	hotList.BorderStyle.Fg = terminal.ColorWhite
	hotList.TitleStyle.Fg = terminal.ColorCyan
	hotList.TextStyle.Fg = terminal.ColorYellow

	client := &http.Client{Timeout: 5 * time.Second}
	self, _ := process.NewProcess(int32(os.Getpid()))

	var (
		mu         sync.RWMutex
		connected  bool
		last       *snapshot
		prevDeliv  = &metrics.CounterSmoother{Alpha: 0.3}
		prevDrop   = &metrics.CounterSmoother{Alpha: 0.3}
		deliverRate, dropRate float64
	)

	poll := func() {
		snap, err := fetchSnapshot(client)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			connected = false
			return
		}
		connected = true
		last = snap
		deliverRate = prevDeliv.Update(snap.deliveredTotal)
		dropRate = prevDrop.Update(snap.droppedTotal)
	}
	poll()

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for range ticker.C {
			poll()
		}
	}()

	banner := widgets.NewParagraph()
	banner.SetRect(0, 0, termWidth, 3)
	banner.Title = " ssetop    (PRESS q TO QUIT) "
	banner.Border = true

	status := widgets.NewParagraph()
	status.Title = "Connection"
	status.SetRect(0, 3, 50, 6)
	status.BorderStyle.Fg = terminal.ColorWhite
	status.TitleStyle.Fg = terminal.ColorCyan

	rate := widgets.NewParagraph()
	rate.Title = "Delivery"
	rate.SetRect(0, 6, 50, 9)
	rate.BorderStyle.Fg = terminal.ColorWhite
	rate.TitleStyle.Fg = terminal.ColorCyan

	cpu := widgets.NewGauge()
	cpu.Title = "ssetop CPU"
	cpu.BarColor = terminal.ColorMagenta
	cpu.BorderStyle.Fg = terminal.ColorWhite
	cpu.TitleStyle.Fg = terminal.ColorCyan
	cpu.SetRect(50, 3, termWidth, 6)

	mem := widgets.NewGauge()
	mem.Title = "ssetop Memory"
	mem.BarColor = terminal.ColorGreen
	mem.BorderStyle.Fg = terminal.ColorWhite
	mem.TitleStyle.Fg = terminal.ColorCyan
	mem.SetRect(50, 6, termWidth, 9)

	draw := func() {
		mu.RLock()
		conn := connected
		snap := last
		dr, rr := deliverRate, dropRate
		mu.RUnlock()

		color := "fg:red"
		state := "unreachable"
		depth := "n/a"
		if conn && snap != nil {
			color = "fg:green"
			state = connectionStateName(snap.connectionState)
			depth = fmt.Sprintf("main=%d peek=%d",
				int(snap.cacheDepth["main"]), int(snap.cacheDepth["peek"]))
		}
		banner.Text = fmt.Sprintf("%s | Polling @ [%s](fg:blue) | %s",
			endpoint, tickInterval.String(), time.Now().Format(time.RFC1123))
		status.Text = fmt.Sprintf("\nState: [%s](%s)\nCache depth: %s", state, color, depth)
		rate.Text = fmt.Sprintf("\nDelivered/sec: %s\nDropped/sec: %s", humanize.Commaf(dr), humanize.Commaf(rr))

		if snap != nil {
			type row struct {
				elementType string
				count       float64
			}
			rows := make([]row, 0, len(snap.admittedByType))
			for k, v := range snap.admittedByType {
				rows = append(rows, row{k, v})
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i].count > rows[j].count })
			hotList.Rows = lo.Map(rows, func(r row, i int) string {
				return fmt.Sprintf("[%02d] %s: %s", i, r.elementType, humanize.Commaf(r.count))
			})
		}

		if self != nil {
			if pct, err := self.Percent(0); err == nil {
				cpu.Percent = int(pct)
			}
			if info, err := self.MemoryInfo(); err == nil && info != nil {
				mem.Percent = int(info.RSS / (1024 * 1024) % 100)
				mem.Label = humanize.Bytes(info.RSS)
			}
		}

		terminal.Render(banner, status, rate, cpu, mem, hotList)
	}

	draw()

	uiEvents := terminal.PollEvents()
	ticker := time.NewTicker(tickInterval).C
	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return
			}
			if e.Type == terminal.ResizeEvent {
				payload := e.Payload.(terminal.Resize)
				termWidth = payload.Width
				banner.SetRect(0, 0, termWidth, 3)
				cpu.SetRect(50, 3, termWidth, 6)
				mem.SetRect(50, 6, termWidth, 9)
				hotList.SetRect(0, 12, termWidth, 30)
				terminal.Clear()
			}
		case <-ticker:
			draw()
		}
	}
}
