package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical drive defaults file.
const DefaultConfigPath = "config/drive.defaults.json"

// DriveConfig is the root configuration document loaded once at startup.
// Every field is optional in the JSON; the Get* accessors supply the default
// for anything omitted so partial files are safe.
type DriveConfig struct {
	// Frame geometry
	FrameWidth  *int `json:"frame_width,omitempty"`
	FrameHeight *int `json:"frame_height,omitempty"`

	// Region of interest trapezoid
	ROIHorizonFraction      *float64 `json:"roi_horizon_fraction,omitempty"`
	ROITopHalfWidthFraction *float64 `json:"roi_top_half_width_fraction,omitempty"`
	ROILeftBlankFraction    *float64 `json:"roi_left_blank_fraction,omitempty"`

	// HSV thresholds, OpenCV 8-bit scale (H 0-179, S/V 0-255)
	ValidVMin  *int `json:"valid_v_min,omitempty"`
	WhiteSMax  *int `json:"white_s_max,omitempty"`
	WhiteVMin  *int `json:"white_v_min,omitempty"`
	YellowHMin *int `json:"yellow_h_min,omitempty"`
	YellowHMax *int `json:"yellow_h_max,omitempty"`
	YellowSMin *int `json:"yellow_s_min,omitempty"`

	// Lane detector
	ScanRows        []float64 `json:"scan_rows,omitempty"`
	MinBlobLength   *int      `json:"min_blob_length,omitempty"`
	LaneGapPixels   *int      `json:"lane_gap_pixels,omitempty"`
	MinLaneGap      *int      `json:"min_lane_gap,omitempty"`
	LearnLaneGap    *bool     `json:"learn_lane_gap,omitempty"`
	AvgWeight       *float64  `json:"avg_weight,omitempty"`
	InterWeight     *float64  `json:"inter_weight,omitempty"`
	ParallelEpsilon *float64  `json:"parallel_epsilon,omitempty"`

	// Object detector
	BandMarginFraction *float64 `json:"band_margin_fraction,omitempty"`
	StopBandTop        *float64 `json:"stop_band_top,omitempty"`
	StopBandBottom     *float64 `json:"stop_band_bottom,omitempty"`
	StopMaxTransitions *int     `json:"stop_max_transitions,omitempty"`
	StopAreaRatio      *float64 `json:"stop_area_ratio,omitempty"`
	CrosswalkBandTop   *float64 `json:"crosswalk_band_top,omitempty"`
	CrosswalkBandBot   *float64 `json:"crosswalk_band_bottom,omitempty"`
	CrosswalkMinHeight *int     `json:"crosswalk_min_height,omitempty"`
	CrosswalkMaxWidth  *int     `json:"crosswalk_max_width,omitempty"`
	CrosswalkMinBars   *int     `json:"crosswalk_min_bars,omitempty"`
	StartBandTop       *float64 `json:"start_band_top,omitempty"`
	StartBandBottom    *float64 `json:"start_band_bottom,omitempty"`
	StartMaxCorners    *int     `json:"start_max_corners,omitempty"`
	StartMinCorners    *int     `json:"start_min_corners,omitempty"`
	StartQualityLevel  *float64 `json:"start_quality_level,omitempty"`
	StartMinDistance   *float64 `json:"start_min_distance,omitempty"`

	// Controller
	TargetLaneGap        *int     `json:"target_lane_gap,omitempty"`
	SteeringKp           *float64 `json:"steering_kp,omitempty"`
	SteeringKi           *float64 `json:"steering_ki,omitempty"`
	SteeringKd           *float64 `json:"steering_kd,omitempty"`
	SteeringBias         *float64 `json:"steering_bias,omitempty"`
	LateralBias          *float64 `json:"lateral_bias,omitempty"`
	SteeringLimit        *float64 `json:"steering_limit,omitempty"`
	IntegralLimit        *float64 `json:"integral_limit,omitempty"`
	ThrottleKp           *float64 `json:"throttle_kp,omitempty"`
	MaxThrottle          *float64 `json:"max_throttle,omitempty"`
	BaseThrottle         *float64 `json:"base_throttle,omitempty"`
	LineThrottle         *float64 `json:"line_throttle,omitempty"`
	YellowThrottle       *float64 `json:"yellow_throttle,omitempty"`
	CrosswalkWait        *string  `json:"crosswalk_wait,omitempty"`   // duration string like "3s"
	StoplineIgnore       *string  `json:"stopline_ignore,omitempty"`  // duration string like "1s"
	YellowExitThreshold  *int     `json:"yellow_exit_threshold,omitempty"`
	ResetIntegralOnPhase *bool    `json:"reset_integral_on_phase,omitempty"`

	// Pipeline
	BarrierTimeout        *string `json:"barrier_timeout,omitempty"`  // duration string like "100ms"
	CaptureInterval       *string `json:"capture_interval,omitempty"` // duration string like "10ms"
	ActuatorFailurePolicy *string `json:"actuator_failure_policy,omitempty"`
	RecordFPS             *float64 `json:"record_fps,omitempty"`

	// Actuator serial link
	SerialBaudRate *int `json:"serial_baud_rate,omitempty"`
}

// EmptyDriveConfig returns a DriveConfig with all fields unset.
func EmptyDriveConfig() *DriveConfig {
	return &DriveConfig{}
}

// LoadDriveConfig loads a DriveConfig from a JSON file.
// The file must have a .json extension and be under the max file size.
func LoadDriveConfig(path string) (*DriveConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDriveConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching upwards from the working directory. Panics if the file cannot be
// loaded; intended for test setup.
func MustLoadDefaultConfig() *DriveConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadDriveConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *DriveConfig) Validate() error {
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}

	fractions := map[string]*float64{
		"roi_horizon_fraction":        c.ROIHorizonFraction,
		"roi_top_half_width_fraction": c.ROITopHalfWidthFraction,
		"roi_left_blank_fraction":     c.ROILeftBlankFraction,
		"band_margin_fraction":        c.BandMarginFraction,
		"stop_band_top":               c.StopBandTop,
		"stop_band_bottom":            c.StopBandBottom,
		"crosswalk_band_top":          c.CrosswalkBandTop,
		"crosswalk_band_bottom":       c.CrosswalkBandBot,
		"start_band_top":              c.StartBandTop,
		"start_band_bottom":           c.StartBandBottom,
		"stop_area_ratio":             c.StopAreaRatio,
		"start_quality_level":         c.StartQualityLevel,
	}
	for name, v := range fractions {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}
	if c.GetBandMarginFraction() >= 0.5 {
		return fmt.Errorf("band_margin_fraction must be below 0.5, got %f", c.GetBandMarginFraction())
	}

	for _, band := range []struct {
		name        string
		top, bottom float64
	}{
		{"stop", c.GetStopBandTop(), c.GetStopBandBottom()},
		{"crosswalk", c.GetCrosswalkBandTop(), c.GetCrosswalkBandBottom()},
		{"start", c.GetStartBandTop(), c.GetStartBandBottom()},
	} {
		if band.top >= band.bottom {
			return fmt.Errorf("%s band top (%f) must be above its bottom (%f)", band.name, band.top, band.bottom)
		}
	}

	for _, row := range c.ScanRows {
		if row <= 0 || row >= 1 {
			return fmt.Errorf("scan_rows entries must be inside (0, 1), got %f", row)
		}
	}

	hsv := map[string]*int{
		"valid_v_min":  c.ValidVMin,
		"white_s_max":  c.WhiteSMax,
		"white_v_min":  c.WhiteVMin,
		"yellow_s_min": c.YellowSMin,
	}
	for name, v := range hsv {
		if v != nil && (*v < 0 || *v > 255) {
			return fmt.Errorf("%s must be between 0 and 255, got %d", name, *v)
		}
	}
	if c.GetYellowHMin() < 0 || c.GetYellowHMax() > 179 || c.GetYellowHMin() > c.GetYellowHMax() {
		return fmt.Errorf("yellow hue range [%d, %d] must be ordered within [0, 179]", c.GetYellowHMin(), c.GetYellowHMax())
	}

	if c.MinBlobLength != nil && *c.MinBlobLength < 1 {
		return fmt.Errorf("min_blob_length must be at least 1, got %d", *c.MinBlobLength)
	}
	if c.LaneGapPixels != nil && *c.LaneGapPixels <= 0 {
		return fmt.Errorf("lane_gap_pixels must be positive, got %d", *c.LaneGapPixels)
	}
	if c.SteeringLimit != nil && (*c.SteeringLimit <= 0 || *c.SteeringLimit > 1) {
		return fmt.Errorf("steering_limit must be in (0, 1], got %f", *c.SteeringLimit)
	}
	if c.MaxThrottle != nil && (*c.MaxThrottle < 0 || *c.MaxThrottle > 1) {
		return fmt.Errorf("max_throttle must be in [0, 1], got %f", *c.MaxThrottle)
	}
	if c.RecordFPS != nil && *c.RecordFPS <= 0 {
		return fmt.Errorf("record_fps must be positive, got %f", *c.RecordFPS)
	}

	durations := map[string]*string{
		"crosswalk_wait":   c.CrosswalkWait,
		"stopline_ignore":  c.StoplineIgnore,
		"barrier_timeout":  c.BarrierTimeout,
		"capture_interval": c.CaptureInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}
	if c.BarrierTimeout != nil && c.GetBarrierTimeout() <= 0 {
		return fmt.Errorf("barrier_timeout must be positive, got %s", *c.BarrierTimeout)
	}

	if c.ActuatorFailurePolicy != nil {
		switch *c.ActuatorFailurePolicy {
		case "continue", "stop":
		default:
			return fmt.Errorf("actuator_failure_policy must be \"continue\" or \"stop\", got %q", *c.ActuatorFailurePolicy)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetFrameWidth returns the frame width in pixels (default 320).
func (c *DriveConfig) GetFrameWidth() int { return intOr(c.FrameWidth, 320) }

// GetFrameHeight returns the frame height in pixels (default 240).
func (c *DriveConfig) GetFrameHeight() int { return intOr(c.FrameHeight, 240) }

// GetROIHorizonFraction returns the height fraction of the trapezoid top (default 0.3).
func (c *DriveConfig) GetROIHorizonFraction() float64 { return floatOr(c.ROIHorizonFraction, 0.3) }

// GetROITopHalfWidthFraction returns the trapezoid top half-width as a width fraction (default 0.3).
func (c *DriveConfig) GetROITopHalfWidthFraction() float64 {
	return floatOr(c.ROITopHalfWidthFraction, 0.3)
}

// GetROILeftBlankFraction returns the blanked left width fraction (default 0, disabled).
func (c *DriveConfig) GetROILeftBlankFraction() float64 { return floatOr(c.ROILeftBlankFraction, 0) }

// GetValidVMin returns the brightness validity gate (default 60).
func (c *DriveConfig) GetValidVMin() int { return intOr(c.ValidVMin, 60) }

// GetWhiteSMax returns the maximum saturation of white paint (default 60).
func (c *DriveConfig) GetWhiteSMax() int { return intOr(c.WhiteSMax, 60) }

// GetWhiteVMin returns the minimum brightness of white paint (default 180).
func (c *DriveConfig) GetWhiteVMin() int { return intOr(c.WhiteVMin, 180) }

// GetYellowHMin returns the lower yellow hue bound (default 15).
func (c *DriveConfig) GetYellowHMin() int { return intOr(c.YellowHMin, 15) }

// GetYellowHMax returns the upper yellow hue bound (default 40).
func (c *DriveConfig) GetYellowHMax() int { return intOr(c.YellowHMax, 40) }

// GetYellowSMin returns the minimum saturation of yellow paint (default 60).
func (c *DriveConfig) GetYellowSMin() int { return intOr(c.YellowSMin, 60) }

// GetScanRows returns the lane scan rows as height fractions (default 0.35, 0.65).
func (c *DriveConfig) GetScanRows() []float64 {
	if len(c.ScanRows) == 0 {
		return []float64{0.35, 0.65}
	}
	rows := make([]float64, len(c.ScanRows))
	copy(rows, c.ScanRows)
	return rows
}

// GetMinBlobLength returns the blob noise floor in pixels (default 4).
func (c *DriveConfig) GetMinBlobLength() int { return intOr(c.MinBlobLength, 4) }

// GetLaneGapPixels returns the configured lane gap (default 120).
func (c *DriveConfig) GetLaneGapPixels() int { return intOr(c.LaneGapPixels, 120) }

// GetMinLaneGap returns the smallest gap accepted for learning (default 20).
func (c *DriveConfig) GetMinLaneGap() int { return intOr(c.MinLaneGap, 20) }

// GetLearnLaneGap reports whether observed gaps replace the configured one (default true).
func (c *DriveConfig) GetLearnLaneGap() bool { return boolOr(c.LearnLaneGap, true) }

// GetAvgWeight returns the mean-deviation weight (default 0.5).
func (c *DriveConfig) GetAvgWeight() float64 { return floatOr(c.AvgWeight, 0.5) }

// GetInterWeight returns the intersection-deviation weight (default 0.5).
func (c *DriveConfig) GetInterWeight() float64 { return floatOr(c.InterWeight, 0.5) }

// GetParallelEpsilon returns the slope difference below which edge lines are parallel (default 1e-3).
func (c *DriveConfig) GetParallelEpsilon() float64 { return floatOr(c.ParallelEpsilon, 1e-3) }

// GetBandMarginFraction returns the left/right margin of the crosswalk and start bands (default 0.2).
func (c *DriveConfig) GetBandMarginFraction() float64 { return floatOr(c.BandMarginFraction, 0.2) }

// GetStopBandTop returns the stop band top as a height fraction (default 0.75).
func (c *DriveConfig) GetStopBandTop() float64 { return floatOr(c.StopBandTop, 0.75) }

// GetStopBandBottom returns the stop band bottom as a height fraction (default 0.95).
func (c *DriveConfig) GetStopBandBottom() float64 { return floatOr(c.StopBandBottom, 0.95) }

// GetStopMaxTransitions returns the per-row transition limit of a solid bar (default 15).
func (c *DriveConfig) GetStopMaxTransitions() int { return intOr(c.StopMaxTransitions, 15) }

// GetStopAreaRatio returns the band coverage that flags a stop line (default 0.35).
func (c *DriveConfig) GetStopAreaRatio() float64 { return floatOr(c.StopAreaRatio, 0.35) }

// GetCrosswalkBandTop returns the crosswalk band top (default 0.4).
func (c *DriveConfig) GetCrosswalkBandTop() float64 { return floatOr(c.CrosswalkBandTop, 0.4) }

// GetCrosswalkBandBottom returns the crosswalk band bottom (default 0.6).
func (c *DriveConfig) GetCrosswalkBandBottom() float64 { return floatOr(c.CrosswalkBandBot, 0.6) }

// GetCrosswalkMinHeight returns the minimum zebra bar height (default 20).
func (c *DriveConfig) GetCrosswalkMinHeight() int { return intOr(c.CrosswalkMinHeight, 20) }

// GetCrosswalkMaxWidth returns the maximum zebra bar width (default 80).
func (c *DriveConfig) GetCrosswalkMaxWidth() int { return intOr(c.CrosswalkMaxWidth, 80) }

// GetCrosswalkMinBars returns the bar count that flags a crosswalk (default 3).
func (c *DriveConfig) GetCrosswalkMinBars() int { return intOr(c.CrosswalkMinBars, 3) }

// GetStartBandTop returns the start band top (default 0.5).
func (c *DriveConfig) GetStartBandTop() float64 { return floatOr(c.StartBandTop, 0.5) }

// GetStartBandBottom returns the start band bottom (default 0.8).
func (c *DriveConfig) GetStartBandBottom() float64 { return floatOr(c.StartBandBottom, 0.8) }

// GetStartMaxCorners returns the corner detector cap (default 50).
func (c *DriveConfig) GetStartMaxCorners() int { return intOr(c.StartMaxCorners, 50) }

// GetStartMinCorners returns the corner count that flags a start line (default 50).
func (c *DriveConfig) GetStartMinCorners() int { return intOr(c.StartMinCorners, 50) }

// GetStartQualityLevel returns the cornerness cut relative to the strongest corner (default 0.01).
func (c *DriveConfig) GetStartQualityLevel() float64 { return floatOr(c.StartQualityLevel, 0.01) }

// GetStartMinDistance returns the minimum corner separation in pixels (default 10).
func (c *DriveConfig) GetStartMinDistance() float64 { return floatOr(c.StartMinDistance, 10) }

// GetTargetLaneGap returns the offset treated as centred (default 0).
func (c *DriveConfig) GetTargetLaneGap() int { return intOr(c.TargetLaneGap, 0) }

// GetSteeringKp returns the proportional steering gain (default 0.004).
func (c *DriveConfig) GetSteeringKp() float64 { return floatOr(c.SteeringKp, 0.004) }

// GetSteeringKi returns the integral steering gain (default 0).
func (c *DriveConfig) GetSteeringKi() float64 { return floatOr(c.SteeringKi, 0) }

// GetSteeringKd returns the derivative steering gain (default 0.001).
func (c *DriveConfig) GetSteeringKd() float64 { return floatOr(c.SteeringKd, 0.001) }

// GetSteeringBias returns the steering trim (default -0.25).
func (c *DriveConfig) GetSteeringBias() float64 { return floatOr(c.SteeringBias, -0.25) }

// GetLateralBias returns the single-edge following bias (default 0.1).
func (c *DriveConfig) GetLateralBias() float64 { return floatOr(c.LateralBias, 0.1) }

// GetSteeringLimit returns the steering clamp (default 0.7).
func (c *DriveConfig) GetSteeringLimit() float64 { return floatOr(c.SteeringLimit, 0.7) }

// GetIntegralLimit returns the integral accumulator clamp (default 2000, 0 disables).
func (c *DriveConfig) GetIntegralLimit() float64 { return floatOr(c.IntegralLimit, 2000) }

// GetThrottleKp returns the throttle error gain (default -0.0005, slowing on error).
func (c *DriveConfig) GetThrottleKp() float64 { return floatOr(c.ThrottleKp, -0.0005) }

// GetMaxThrottle returns the throttle clamp (default 0.5).
func (c *DriveConfig) GetMaxThrottle() float64 { return floatOr(c.MaxThrottle, 0.5) }

// GetBaseThrottle returns the cruise throttle (default 0.4).
func (c *DriveConfig) GetBaseThrottle() float64 { return floatOr(c.BaseThrottle, 0.4) }

// GetLineThrottle returns the precision line-following throttle (default 0.3).
func (c *DriveConfig) GetLineThrottle() float64 { return floatOr(c.LineThrottle, 0.3) }

// GetYellowThrottle returns the yellow-line phase throttle (default 0.35).
func (c *DriveConfig) GetYellowThrottle() float64 { return floatOr(c.YellowThrottle, 0.35) }

// GetCrosswalkWait returns the crosswalk dwell time (default 3s).
func (c *DriveConfig) GetCrosswalkWait() time.Duration {
	return durationOr(c.CrosswalkWait, 3*time.Second)
}

// GetStoplineIgnore returns the stopline debounce window after a phase change (default 1s).
func (c *DriveConfig) GetStoplineIgnore() time.Duration {
	return durationOr(c.StoplineIgnore, time.Second)
}

// GetYellowExitThreshold returns the yellow pixel count below which the yellow section ends (default 200).
func (c *DriveConfig) GetYellowExitThreshold() int { return intOr(c.YellowExitThreshold, 200) }

// GetResetIntegralOnPhase reports whether the PID integral clears on each phase change (default false).
func (c *DriveConfig) GetResetIntegralOnPhase() bool { return boolOr(c.ResetIntegralOnPhase, false) }

// GetBarrierTimeout returns the bounded rendezvous wait (default 100ms).
func (c *DriveConfig) GetBarrierTimeout() time.Duration {
	return durationOr(c.BarrierTimeout, 100*time.Millisecond)
}

// GetCaptureInterval returns the camera loop rate cap (default 10ms, 0 disables).
func (c *DriveConfig) GetCaptureInterval() time.Duration {
	return durationOr(c.CaptureInterval, 10*time.Millisecond)
}

// GetActuatorFailurePolicy returns "continue" or "stop" (default "continue").
func (c *DriveConfig) GetActuatorFailurePolicy() string {
	if c.ActuatorFailurePolicy == nil || *c.ActuatorFailurePolicy == "" {
		return "continue"
	}
	return *c.ActuatorFailurePolicy
}

// GetRecordFPS returns the recorder frame rate (default 30).
func (c *DriveConfig) GetRecordFPS() float64 { return floatOr(c.RecordFPS, 30) }

// GetSerialBaudRate returns the actuator link baud rate (default 115200).
func (c *DriveConfig) GetSerialBaudRate() int { return intOr(c.SerialBaudRate, 115200) }
