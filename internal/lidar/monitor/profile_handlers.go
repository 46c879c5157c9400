package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/sentry/internal/httputil"
	"github.com/banshee-data/sentry/internal/lidar/l1packets"
	"github.com/banshee-data/sentry/internal/lidar/l2frames"
	"github.com/banshee-data/sentry/internal/lidar/pipeline"
)

// echartsAssetsPrefix is where rendered pages load the echarts bundle from.
var echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// StatusSource provides runner snapshots. *pipeline.Runner satisfies it.
type StatusSource interface {
	Status() pipeline.Status
}

// AttachAdminRoutes registers the profile chart and the JSON status snapshot
// on the /debug/ index of mux.
func AttachAdminRoutes(mux *http.ServeMux, src StatusSource) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("profile", "reference profile vs last frame", func(w http.ResponseWriter, r *http.Request) {
		handleProfileChart(w, r, src)
	})
	debug.HandleFunc("status", "pipeline status (JSON)", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(w, r, src)
	})
}

// statusResponse adds derived fields to a Status for the JSON route.
type statusResponse struct {
	pipeline.Status
	FrameRate float64 `json:"frame_rate"`
}

func handleStatus(w http.ResponseWriter, r *http.Request, src StatusSource) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}
	st := src.Status()
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: st, FrameRate: st.FrameRate()})
}

// handleProfileChart renders the frozen reference profile and the most recent
// projected frame as two lines over the angle index. Before calibration
// completes only the last frame is drawn.
// Query params:
//   - max_distance (optional) caps the y axis
func handleProfileChart(w http.ResponseWriter, r *http.Request, src StatusSource) {
	if !httputil.AllowMethods(w, r, http.MethodGet) {
		return
	}

	yOpts := opts.YAxis{Name: "distance", NameLocation: "middle", NameGap: 40}
	if s := r.URL.Query().Get("max_distance"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid max_distance")
			return
		}
		yOpts.Max = v
	}

	st := src.Status()

	x := make([]int, l1packets.SAMPLES_PER_FRAME)
	for i := range x {
		x[i] = i
	}

	subtitle := fmt.Sprintf("phase=%s frames=%d commands=%d fires=%d", st.Phase, st.Frames, st.Commands, st.Fires)
	if st.LastDetection != nil {
		subtitle += fmt.Sprintf(" last=%s", st.LastDetection.Command)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Reference Profile", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "angle index", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(yOpts),
	)
	line.SetXAxis(x)
	if st.Profile != nil {
		line.AddSeries("reference", lineData(st.Profile),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	}
	if st.Frames > 0 {
		line.AddSeries("last frame", lineData(&st.LastDistances),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func lineData(d *l2frames.Distances) []opts.LineData {
	out := make([]opts.LineData, len(d))
	for i, v := range d {
		out[i] = opts.LineData{Value: v}
	}
	return out
}
