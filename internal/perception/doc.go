// Package perception holds the types shared by the detectors: the classified
// mask, the HSV gates and region of interest that produce it, and the follow
// guidance that the controller hands to the detectors.
//
// Classification uses the 8-bit HSV scale common to camera tooling: hue in
// [0, 179], saturation and value in [0, 255]. A pixel is only ever classified
// inside the region-of-interest trapezoid; everything else is background.
// The OpenCV implementation lives in package gocvvision.
package perception
