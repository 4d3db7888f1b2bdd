package autodrive

import (
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/drive"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/perception/lane"
	"github.com/banshee-data/lanepilot/internal/perception/objects"
)

// ClassifierParams maps the paint gates and ROI shared by both detectors.
func ClassifierParams(c *config.DriveConfig) perception.Params {
	return perception.Params{
		Thresholds: perception.Thresholds{
			ValidVMin:  uint8(c.GetValidVMin()),
			WhiteSMax:  uint8(c.GetWhiteSMax()),
			WhiteVMin:  uint8(c.GetWhiteVMin()),
			YellowHMin: uint8(c.GetYellowHMin()),
			YellowHMax: uint8(c.GetYellowHMax()),
			YellowSMin: uint8(c.GetYellowSMin()),
		},
		ROI: perception.ROI{
			HorizonFraction:      c.GetROIHorizonFraction(),
			TopHalfWidthFraction: c.GetROITopHalfWidthFraction(),
			LeftBlankFraction:    c.GetROILeftBlankFraction(),
		},
	}
}

func LaneConfig(c *config.DriveConfig, cls perception.Classifier) lane.Config {
	return lane.Config{
		Classifier:      cls,
		ScanRows:        c.GetScanRows(),
		MinBlobLength:   c.GetMinBlobLength(),
		LaneGap:         c.GetLaneGapPixels(),
		MinLaneGap:      c.GetMinLaneGap(),
		LearnLaneGap:    c.GetLearnLaneGap(),
		AvgWeight:       c.GetAvgWeight(),
		InterWeight:     c.GetInterWeight(),
		ParallelEpsilon: c.GetParallelEpsilon(),
	}
}

func ObjectsConfig(c *config.DriveConfig, cls perception.Classifier, v objects.Vision) objects.Config {
	margin := c.GetBandMarginFraction()
	return objects.Config{
		Classifier: cls,
		Vision:     v,

		StopBand:           objects.Band{Top: c.GetStopBandTop(), Bottom: c.GetStopBandBottom(), Margin: margin},
		StopMaxTransitions: c.GetStopMaxTransitions(),
		StopAreaRatio:      c.GetStopAreaRatio(),

		CrosswalkBand:      objects.Band{Top: c.GetCrosswalkBandTop(), Bottom: c.GetCrosswalkBandBottom(), Margin: margin},
		CrosswalkMinHeight: c.GetCrosswalkMinHeight(),
		CrosswalkMaxWidth:  c.GetCrosswalkMaxWidth(),
		CrosswalkMinBars:   c.GetCrosswalkMinBars(),

		StartBand: objects.Band{Top: c.GetStartBandTop(), Bottom: c.GetStartBandBottom(), Margin: margin},
		StartCorners: perception.CornerParams{
			MaxCorners:   c.GetStartMaxCorners(),
			QualityLevel: c.GetStartQualityLevel(),
			MinDistance:  c.GetStartMinDistance(),
		},
		StartMinCorners: c.GetStartMinCorners(),
	}
}

func ControllerConfig(c *config.DriveConfig) drive.Config {
	return drive.Config{
		TargetLaneGap:        c.GetTargetLaneGap(),
		Kp:                   c.GetSteeringKp(),
		Ki:                   c.GetSteeringKi(),
		Kd:                   c.GetSteeringKd(),
		SteeringBias:         c.GetSteeringBias(),
		LateralBias:          c.GetLateralBias(),
		SteeringLimit:        c.GetSteeringLimit(),
		IntegralLimit:        c.GetIntegralLimit(),
		ThrottleKp:           c.GetThrottleKp(),
		MaxThrottle:          c.GetMaxThrottle(),
		BaseThrottle:         c.GetBaseThrottle(),
		LineThrottle:         c.GetLineThrottle(),
		YellowThrottle:       c.GetYellowThrottle(),
		CrosswalkWait:        c.GetCrosswalkWait(),
		StoplineIgnore:       c.GetStoplineIgnore(),
		YellowExitThreshold:  c.GetYellowExitThreshold(),
		ResetIntegralOnPhase: c.GetResetIntegralOnPhase(),
	}
}
