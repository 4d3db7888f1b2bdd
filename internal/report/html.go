package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lanepilot/internal/telemetry"
)

// HTMLOptions tunes the rendered page. An empty AssetsHost uses the
// go-echarts default CDN.
type HTMLOptions struct {
	AssetsHost string
}

// RenderHTML writes an interactive page for a run: commands and lane offset
// over time, and ticks spent in each phase.
func RenderHTML(w io.Writer, run telemetry.Run, ticks []telemetry.Tick, o HTMLOptions) error {
	sum := Summarize(ticks)
	initOpts := opts.Initialization{PageTitle: "lanepilot run " + run.ID, Width: "100%", Height: "420px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}

	frames := make([]string, len(ticks))
	steer := make([]opts.LineData, len(ticks))
	throttle := make([]opts.LineData, len(ticks))
	offset := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		frames[i] = strconv.FormatUint(t.FrameID, 10)
		steer[i] = opts.LineData{Value: t.Steering}
		throttle[i] = opts.LineData{Value: t.Throttle}
		offset[i] = opts.LineData{Value: t.LaneOffset}
	}

	commands := charts.NewLine()
	commands.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Commands", Subtitle: fmt.Sprintf("run=%s mode=%s ticks=%d", run.ID, run.Mode, sum.Ticks)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: -1, Max: 1}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	commands.SetXAxis(frames).
		AddSeries("steering", steer).
		AddSeries("throttle", throttle)

	lane := charts.NewLine()
	lane.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Lane offset", Subtitle: fmt.Sprintf("mean |offset|=%.2f max=%d", sum.MeanAbsOffset, sum.MaxAbsOffset)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	lane.SetXAxis(frames).AddSeries("offset", offset)

	phases := sum.phases()
	counts := make([]opts.BarData, len(phases))
	for i, p := range phases {
		counts[i] = opts.BarData{Value: sum.PhaseTicks[p]}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Ticks per phase", Subtitle: fmt.Sprintf("outcomes=%v", sum.Outcomes)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(phases).
		AddSeries("ticks", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.PageTitle = initOpts.PageTitle
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(commands, lane, bar)
	return page.Render(w)
}
